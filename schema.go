package auth

import (
	"context"

	"github.com/uptrace/bun"
)

var schemaModels = []any{
	(*Organization)(nil),
	(*User)(nil),
	(*RefreshToken)(nil),
	(*PasswordResetToken)(nil),
	(*EmailVerificationToken)(nil),
	(*Permission)(nil),
	(*Role)(nil),
}

type schemaIndex struct {
	model   any
	name    string
	columns []string
	unique  bool
}

var schemaIndexes = []schemaIndex{
	{model: (*Role)(nil), name: "roles_scope_name_idx", columns: []string{"scope", "name"}, unique: true},
	{model: (*RefreshToken)(nil), name: "refresh_tokens_user_idx", columns: []string{"user_id"}},
	{model: (*PasswordResetToken)(nil), name: "password_reset_tokens_user_idx", columns: []string{"user_id"}},
	{model: (*EmailVerificationToken)(nil), name: "email_verification_tokens_user_idx", columns: []string{"user_id"}},
}

// CreateSchema bootstraps the tables and indexes. It is safe to run twice.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range schemaModels {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return infrastructureError(err, "failed to create table")
		}
	}

	for _, idx := range schemaIndexes {
		q := db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists()
		if idx.unique {
			q = q.Unique()
		}
		if _, err := q.Exec(ctx); err != nil {
			return infrastructureError(err, "failed to create index")
		}
	}

	return nil
}
