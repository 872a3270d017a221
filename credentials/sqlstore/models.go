package sqlstore

import (
	"github.com/jrsteele09/go-credential-pool/credentials"
	"github.com/uptrace/bun"
)

type primaryRow struct {
	bun.BaseModel `bun:"table:credential_records,alias:cr"`

	Position     int    `bun:"position,pk"`
	SubjectID    string `bun:"subject_id,notnull"`
	AccessToken  string `bun:"access_token,notnull"`
	RefreshToken string `bun:"refresh_token,notnull"`
}

type refreshedRow struct {
	bun.BaseModel `bun:"table:refreshed_credentials,alias:rc"`

	Position     int    `bun:"position,pk"`
	SubjectID    string `bun:"subject_id,notnull"`
	AccessToken  string `bun:"access_token,notnull"`
	RefreshToken string `bun:"refresh_token,notnull"`
}

func newPrimaryRow(position int, rec credentials.Record) primaryRow {
	return primaryRow{
		Position:     position,
		SubjectID:    rec.SubjectID,
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
	}
}

func (r primaryRow) toDomain() credentials.Record {
	return credentials.Record{
		SubjectID:    r.SubjectID,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
	}
}

func (r refreshedRow) toDomain() credentials.Record {
	return primaryRow(r).toDomain()
}
