package importexport

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"

	"github.com/QingMing-Bot/scriptrunner/internal/domain"
)

// ParseServersJSON 解析 JSON 数组为服务器列表
func ParseServersJSON(data []byte) ([]domain.Server, error) {
	var ss []domain.Server
	if err := json.Unmarshal(data, &ss); err != nil {
		return nil, err
	}
	out := ss[:0]
	for _, s := range ss {
		if strings.TrimSpace(s.Host) != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// ParseServersCSV 解析 CSV (含 header) -> servers
// 列: name,host,username,os,tags,keyfile_path （不含密码，密码不走导入导出）
func ParseServersCSV(data []byte) ([]domain.Server, error) {
	r := csv.NewReader(strings.NewReader(string(data)))
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []domain.Server{}, nil
	}
	start := 0
	if len(rows[0]) > 1 && strings.Contains(strings.ToLower(strings.Join(rows[0], ",")), "host") {
		start = 1
	}
	var out []domain.Server
	for i := start; i < len(rows); i++ {
		cols := rows[i]
		if len(cols) < 2 {
			continue
		}
		host := strings.TrimSpace(cols[1])
		if host == "" {
			continue
		}
		s := domain.Server{Name: strings.TrimSpace(cols[0]), Host: host}
		if len(cols) > 2 {
			s.Username = strings.TrimSpace(cols[2])
		}
		if len(cols) > 3 {
			s.OS = strings.TrimSpace(cols[3])
		}
		if len(cols) > 4 {
			s.Tags = strings.TrimSpace(cols[4])
		}
		if len(cols) > 5 {
			s.KeyFile = strings.TrimSpace(cols[5])
		}
		out = append(out, s)
	}
	return out, nil
}

// RenderServersCSV 输出 CSV 字符串 (含 header)
func RenderServersCSV(ss []domain.Server) string {
	var b strings.Builder
	b.WriteString("name,host,username,os,tags,keyfile_path\n")
	for _, s := range ss {
		b.WriteString(strings.Join([]string{
			escapeCSV(s.Name), escapeCSV(s.Host), escapeCSV(s.Username), escapeCSV(s.OS), escapeCSV(s.Tags), escapeCSV(s.KeyFile),
		}, ","))
		b.WriteString("\n")
	}
	return b.String()
}

func escapeCSV(s string) string {
	if strings.ContainsAny(s, ",\n\"") {
		return "\"" + strings.ReplaceAll(s, "\"", "\"\"") + "\""
	}
	return s
}

// SerializeServersJSON 输出 JSON 字符串（密码字段本身不序列化）
func SerializeServersJSON(ss []domain.Server) (string, error) {
	b, err := json.Marshal(ss)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Simple validation
func ValidateServers(ss []domain.Server) error {
	for _, s := range ss {
		if strings.TrimSpace(s.Host) == "" {
			return errors.New("empty host")
		}
	}
	return nil
}
