package server

import (
	"bufio"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/ndlib/folio/entity"
	"github.com/ndlib/folio/scope"
)

// A TokenDecoder validates and decodes user tokens passed into the web API. If
// the given token is not valid, for whatever reason, the anonymous principal
// is returned. An error is returned only if there is some kind of error doing
// the lookup and the ultimate status of the token is unknown.
type TokenDecoder interface {
	TokenDecode(token string) (entity.Principal, error)
}

// NewNobodyDecoder creates a TokenDecoder that for every possible token
// returns a user named "nobody" with the superadmin role. It is only meant
// for development servers.
func NewNobodyDecoder() TokenDecoder {
	return new(nobodyDecoder)
}

type nobodyDecoder struct{}

func (_ nobodyDecoder) TokenDecode(token string) (entity.Principal, error) {
	return entity.Principal{UserID: "nobody", Role: entity.RoleSuperadmin}, nil
}

// NewAnonymousDecoder creates a TokenDecoder that treats every token as
// anonymous.
func NewAnonymousDecoder() TokenDecoder {
	return new(anonymousDecoder)
}

type anonymousDecoder struct{}

func (_ anonymousDecoder) TokenDecode(token string) (entity.Principal, error) {
	return entity.Anonymous, nil
}

// A ListDecoder is backed by a predefined list of users, which are read from r upon creation.
// The reader r should consist of a sequence of user entries, separated by newlines.
// Each entry has the form:
//
//	<user name>  <role>  <organization>  [<membership tier>]  <token>
//
// The fields are delineated by whitespace (spaces or tabs).
// This decoder does not permit spaces in any field. The role is one of
// "org_member", "org_admin", "superadmin" (case insensitive). An
// organization of "-" means none, as for a superadmin. The membership tier
// column is optional. Empty lines and lines beginning with a hash '#' are
// skipped. A line with an unknown role or a bad organization is an error.
func NewListDecoder(r io.Reader) (TokenDecoder, error) {
	users, err := parseListFile(r)
	if err != nil {
		return nil, err
	}
	sort.Sort(byToken(users))
	return listDecoder{users}, nil
}

// NewListDecoderFile is a convenience function that reads the contents of
// the given file into a ListDecoder. The file should have the same format
// that NewListDecoder expects.
func NewListDecoderFile(fname string) (TokenDecoder, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewListDecoder(f)
}

// NewListDecoderString is a convenience function that passes the given string
// into a ListDecoder. The format of the string is the same as that expected
// by NewListDecoder.
func NewListDecoderString(data string) (TokenDecoder, error) {
	return NewListDecoder(strings.NewReader(data))
}

func parseListFile(r io.Reader) ([]userEntry, error) {
	var result []userEntry
	var lineno int
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineno++
		// split on whitespace
		pieces := strings.Fields(scanner.Text())
		// skip blank lines or lines beginning with a '#'
		if len(pieces) == 0 || pieces[0][0] == '#' {
			continue
		}
		if len(pieces) != 4 && len(pieces) != 5 {
			return nil, errors.Errorf("line %d: expected 4 or 5 columns, found %d", lineno, len(pieces))
		}
		role, ok := entity.ParseRole(pieces[1])
		if !ok {
			return nil, errors.Errorf("line %d: unknown role %q", lineno, pieces[1])
		}
		p := entity.Principal{UserID: pieces[0], Role: role}
		if pieces[2] != "-" {
			if !scope.ValidID(pieces[2]) {
				return nil, errors.Errorf("line %d: bad organization %q", lineno, pieces[2])
			}
			p.OrganizationID = pieces[2]
		}
		if len(pieces) == 5 {
			if !scope.ValidID(pieces[3]) {
				return nil, errors.Errorf("line %d: bad membership tier %q", lineno, pieces[3])
			}
			p.MembershipTier = pieces[3]
		}
		result = append(result, userEntry{
			token:     pieces[len(pieces)-1],
			principal: p,
		})
	}
	return result, scanner.Err()
}

type listDecoder struct {
	data []userEntry
}

type byToken []userEntry

func (ue byToken) Len() int           { return len(ue) }
func (ue byToken) Less(i, j int) bool { return ue[i].token < ue[j].token }
func (ue byToken) Swap(i, j int)      { ue[i], ue[j] = ue[j], ue[i] }

type userEntry struct {
	token     string
	principal entity.Principal
}

func (ld listDecoder) TokenDecode(token string) (entity.Principal, error) {
	if token == "" {
		return entity.Anonymous, nil
	}
	users := ld.data
	i := sort.Search(len(users), func(i int) bool { return users[i].token >= token })
	if i < len(users) && users[i].token == token {
		return users[i].principal, nil
	}
	return entity.Anonymous, nil
}
