package schema

import (
	"fmt"
	"strings"
)

// NormalizePath converts dotted or bracketed key paths to dotted form:
//
//	gitlab_rails['db_host']   -> gitlab_rails.db_host
//	a["b"].c                  -> a.b.c
func NormalizePath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", fmt.Errorf("empty key path")
	}

	var segs []string
	var cur strings.Builder
	flush := func(pos int) error {
		if cur.Len() == 0 {
			return fmt.Errorf("empty segment at position %d in %q", pos, p)
		}
		segs = append(segs, cur.String())
		cur.Reset()
		return nil
	}

	for i := 0; i < len(p); i++ {
		ch := p[i]
		switch ch {
		case '.':
			if err := flush(i); err != nil {
				return "", err
			}
		case '[':
			if cur.Len() > 0 {
				if err := flush(i); err != nil {
					return "", err
				}
			}
			if i+1 >= len(p) {
				return "", fmt.Errorf("unterminated index in %q", p)
			}
			quote := p[i+1]
			if quote != '\'' && quote != '"' {
				return "", fmt.Errorf("index at position %d in %q must be quoted", i, p)
			}
			end := strings.IndexByte(p[i+2:], quote)
			if end < 0 {
				return "", fmt.Errorf("unterminated index in %q", p)
			}
			seg := p[i+2 : i+2+end]
			if strings.Contains(seg, ".") {
				return "", fmt.Errorf("segment %q in %q contains '.'", seg, p)
			}
			cur.WriteString(seg)
			if err := flush(i); err != nil {
				return "", err
			}
			i = i + 2 + end
			if i+1 >= len(p) || p[i+1] != ']' {
				return "", fmt.Errorf("expected ']' after index in %q", p)
			}
			i++
			// A dot may follow a closing bracket.
			if i+1 < len(p) && p[i+1] == '.' {
				i++
				if i+1 >= len(p) {
					return "", fmt.Errorf("trailing '.' in %q", p)
				}
			}
		default:
			cur.WriteByte(ch)
		}
	}
	if cur.Len() > 0 {
		segs = append(segs, cur.String())
	} else if len(p) > 0 && p[len(p)-1] == '.' {
		return "", fmt.Errorf("trailing '.' in %q", p)
	}
	return strings.Join(segs, "."), nil
}

// SplitPath splits a normalized path into its segments.
func SplitPath(p string) []string {
	if p == "" {
		return nil
	}
	return strings.Split(p, ".")
}

// JoinPath joins segments into a normalized path.
func JoinPath(segs ...string) string {
	return strings.Join(segs, ".")
}

// Namespace returns the first segment of a path.
func Namespace(p string) string {
	ns, _, _ := strings.Cut(p, ".")
	return ns
}
