package bundle

import (
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/ndlib/folio/util"
)

// Fingerprints are the hash of a canonical CBOR encoding, so the same
// content always gives the same fingerprint whatever the map order or the
// JSON formatting. Generation times are left out.
var canonical cbor.EncMode

func init() {
	var err error
	canonical, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

type recordPrint struct {
	ID             string                 `cbor:"id"`
	OrganizationID string                 `cbor:"org"`
	Slug           string                 `cbor:"slug"`
	Status         string                 `cbor:"status"`
	Visibility     string                 `cbor:"visibility"`
	MembershipTier string                 `cbor:"tier"`
	Version        int                    `cbor:"version"`
	Data           map[string]interface{} `cbor:"data"`
	CreatedAt      string                 `cbor:"createdAt"`
	UpdatedAt      string                 `cbor:"updatedAt"`
}

type summaryPrint struct {
	ID                string `cbor:"id"`
	Name              string `cbor:"name"`
	PluralName        string `cbor:"pluralName"`
	EntityCount       int    `cbor:"count"`
	BundleFingerprint string `cbor:"bundle"`
	LastUpdated       string `cbor:"lastUpdated"`
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func fingerprint(v interface{}) (string, error) {
	hw := util.NewHashWriterPlain()
	if err := canonical.NewEncoder(hw).Encode(v); err != nil {
		return "", err
	}
	return hw.Fingerprint(), nil
}

// bundleFingerprint hashes the records, which must already be sorted.
func bundleFingerprint(typeID, scope string, records []Record) (string, error) {
	prints := make([]recordPrint, len(records))
	for i, r := range records {
		data := make(map[string]interface{}, len(r.Data))
		for k, v := range r.Data {
			data[k] = v.Interface()
		}
		prints[i] = recordPrint{
			ID:             r.ID,
			OrganizationID: r.OrganizationID,
			Slug:           r.Slug,
			Status:         string(r.Status),
			Visibility:     string(r.Visibility),
			MembershipTier: r.MembershipTier,
			Version:        r.Version,
			Data:           data,
			CreatedAt:      stamp(r.CreatedAt),
			UpdatedAt:      stamp(r.UpdatedAt),
		}
	}
	return fingerprint([]interface{}{typeID, scope, prints})
}

func manifestFingerprint(scope string, summaries []Summary) (string, error) {
	prints := make([]summaryPrint, len(summaries))
	for i, s := range summaries {
		prints[i] = summaryPrint{
			ID:                s.ID,
			Name:              s.Name,
			PluralName:        s.PluralName,
			EntityCount:       s.EntityCount,
			BundleFingerprint: s.BundleFingerprint,
			LastUpdated:       stamp(s.LastUpdated),
		}
	}
	return fingerprint([]interface{}{scope, prints})
}
