package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// BulkHeader announces a raw payload of Length bytes for method Type on actor To.
type BulkHeader struct {
	To     string
	Type   string
	Length int64
}

// EncodeBulkHeader renders h as "bulk <to> <type> <length>:".
func EncodeBulkHeader(h BulkHeader) ([]byte, error) {
	if h.Length < 0 {
		return nil, fmt.Errorf("bulk: negative length %d", h.Length)
	}
	if h.To == "" || h.Type == "" || strings.ContainsAny(h.To+h.Type, " :") {
		return nil, fmt.Errorf("bulk: actor %q and type %q must be non-empty without spaces or colons", h.To, h.Type)
	}
	return []byte(fmt.Sprintf("bulk %s %s %d:", h.To, h.Type, h.Length)), nil
}

// ParseBulkHeader parses the body of a Bulk frame.
func ParseBulkHeader(body []byte) (BulkHeader, error) {
	s, ok := strings.CutSuffix(string(body), ":")
	if !ok {
		return BulkHeader{}, fmt.Errorf("bulk: header %q missing ':' terminator", body)
	}
	fields := strings.Fields(s)
	if len(fields) != 4 || fields[0] != "bulk" {
		return BulkHeader{}, fmt.Errorf("bulk: malformed header %q", body)
	}
	n, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil || n < 0 {
		return BulkHeader{}, fmt.Errorf("bulk: bad length %q", fields[3])
	}
	return BulkHeader{To: fields[1], Type: fields[2], Length: n}, nil
}
