package store

import (
	"fmt"
	"strings"
)

// placeholderStyle abstracts the positional-parameter syntax difference
// between the two backends.
type placeholderStyle interface {
	placeholder(n int) string
}

type sqlitePlaceholders struct{}

func (sqlitePlaceholders) placeholder(int) string { return "?" }

type postgresPlaceholders struct{}

func (postgresPlaceholders) placeholder(n int) string { return fmt.Sprintf("$%d", n) }

// buildIdentityQuery assembles the identity lookup for the populated fields
// of q. Both backends share the schema, so only placeholders differ.
func buildIdentityQuery(q IdentityQuery, style placeholderStyle) (string, []any) {
	var (
		joins []string
		conds []string
		args  []any
	)
	next := func(v any) string {
		args = append(args, v)
		return style.placeholder(len(args))
	}

	if q.Email != "" {
		joins = append(joins, "JOIN identity_emails e ON e.identity_id = i.id")
		conds = append(conds, "e.value = "+next(normalizeEmail(q.Email)))
		if q.VerifiedOnly {
			conds = append(conds, "e.verified = "+next(1))
		}
	}
	if q.PhoneDigits != "" {
		joins = append(joins, "JOIN identity_phones p ON p.identity_id = i.id")
		conds = append(conds, "p.digits = "+next(q.PhoneDigits))
		if q.VerifiedOnly {
			conds = append(conds, "p.verified = "+next(1))
		}
	} else if q.PhoneLast4 != "" {
		joins = append(joins, "JOIN identity_phones p ON p.identity_id = i.id")
		conds = append(conds, "p.last4 = "+next(q.PhoneLast4))
	}
	if q.Platform != "" && q.Handle != "" {
		joins = append(joins, "JOIN identity_handles h ON h.identity_id = i.id")
		conds = append(conds, "h.platform = "+next(q.Platform))
		conds = append(conds, "h.handle = "+next(normalizeHandle(q.Handle)))
	}
	if q.NameKey != "" {
		conds = append(conds, "i.name_key = "+next(q.NameKey))
	}
	if q.PostalCode != "" {
		conds = append(conds, "i.postal_code = "+next(strings.TrimSpace(q.PostalCode)))
	}

	query := "SELECT DISTINCT i.record FROM identities i"
	if len(joins) > 0 {
		query += " " + strings.Join(joins, " ")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	query += " LIMIT " + next(limit)

	return query, args
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeHandle(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "@"))
}

func normalizeDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
