package entity

import "strings"

// slugFor picks the slug of an entity: the slug field if there is one,
// otherwise the name or title made url safe, otherwise the id.
func slugFor(data Data, id string) string {
	if s := slugify(data.String("slug")); s != "" {
		return s
	}
	for _, field := range []string{"name", "title"} {
		if s := slugify(data.String(field)); s != "" {
			return s
		}
	}
	return id
}

// slugify lower cases s and turns every run of characters other than
// ascii letters and digits into a single hyphen.
func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
		default:
			dash = true
		}
	}
	return b.String()
}
