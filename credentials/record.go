package credentials

import (
	"fmt"
	"strings"

	errs "github.com/jrsteele09/go-credential-pool/internal/errors"
)

// Record is one stored credential pair tied to an external subject.
// Tokens are opaque bearer strings; no expiry is kept, so a stale token is
// only discovered when a call using it fails.
type Record struct {
	SubjectID    string `json:"subjectId"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Validate reports ErrUnparseableRecord when the record cannot take part in a refresh.
func (r Record) Validate() error {
	if strings.TrimSpace(r.SubjectID) == "" {
		return fmt.Errorf("%w: missing subject id", errs.ErrUnparseableRecord)
	}
	if strings.TrimSpace(r.RefreshToken) == "" {
		return fmt.Errorf("%w: missing refresh token for %s", errs.ErrUnparseableRecord, r.SubjectID)
	}
	return nil
}

// WithTokens returns a copy of the record carrying a new token pair
func (r Record) WithTokens(accessToken, refreshToken string) Record {
	r.AccessToken = accessToken
	r.RefreshToken = refreshToken
	return r
}

// Upsert replaces the first record with the same subject id in place or
// appends rec. Last write wins; legacy duplicates further down are left alone.
func Upsert(records []Record, rec Record) []Record {
	for i := range records {
		if records[i].SubjectID == rec.SubjectID {
			records[i] = rec
			return records
		}
	}
	return append(records, rec)
}
