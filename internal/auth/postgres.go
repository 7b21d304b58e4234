package auth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"edulingo.org/internal/apperr"
)

const pgUniqueViolation = "23505"

// PGAccounts implements AccountStore on PostgreSQL.
type PGAccounts struct {
	db *sql.DB
}

func NewPGAccounts(db *sql.DB) *PGAccounts {
	return &PGAccounts{db: db}
}

var _ AccountStore = (*PGAccounts)(nil)

const accountColumns = `id, phone, password_hash, role, name, avatar, gender,
	date_of_birth, address, country, last_login, is_verified, is_active,
	pin_id, created_at, updated_at`

func (s *PGAccounts) Create(ctx context.Context, a *Account) error {
	_, err := s.db.ExecContext(ctx,
		`insert into accounts(id, phone, password_hash, role, name, avatar, gender,
		   date_of_birth, address, country, is_verified, is_active, pin_id, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		a.ID, a.Phone, a.PasswordHash, a.Role, a.Name, a.Avatar, a.Gender,
		a.DateOfBirth, a.Address, a.Country, a.IsVerified, a.IsActive, a.PinID,
		a.CreatedAt, a.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return apperr.Conflict("phone number already registered")
	}
	return err
}

func (s *PGAccounts) FindByID(ctx context.Context, id string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where id=$1`, id)
	return scanAccount(row)
}

func (s *PGAccounts) FindByPhone(ctx context.Context, phone string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where phone=$1`, phone)
	return scanAccount(row)
}

func (s *PGAccounts) Update(ctx context.Context, a *Account) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts set phone=$2, password_hash=$3, role=$4, name=$5, avatar=$6,
		   gender=$7, date_of_birth=$8, address=$9, country=$10, last_login=$11,
		   is_verified=$12, is_active=$13, pin_id=$14, updated_at=$15
		 where id=$1`,
		a.ID, a.Phone, a.PasswordHash, a.Role, a.Name, a.Avatar,
		a.Gender, a.DateOfBirth, a.Address, a.Country, a.LastLogin,
		a.IsVerified, a.IsActive, a.PinID, a.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return apperr.Conflict("phone number already registered")
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("account not found")
	}
	return nil
}

func (s *PGAccounts) Deactivate(ctx context.Context, ids []string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`update accounts set is_active=false, updated_at=now() where id = any($1) and is_active`,
		ids,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PGAccounts) FindByIDs(ctx context.Context, ids []string) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+accountColumns+` from accounts where id = any($1) order by created_at`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var (
		a         Account
		dob       sql.NullTime
		lastLogin sql.NullTime
		pinID     sql.NullString
	)
	err := row.Scan(&a.ID, &a.Phone, &a.PasswordHash, &a.Role, &a.Name, &a.Avatar,
		&a.Gender, &dob, &a.Address, &a.Country, &lastLogin, &a.IsVerified,
		&a.IsActive, &pinID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("account not found")
		}
		return nil, err
	}
	if dob.Valid {
		t := dob.Time
		a.DateOfBirth = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		a.LastLogin = &t
	}
	if pinID.Valid {
		pin := pinID.String
		a.PinID = &pin
	}
	return &a, nil
}

// PGSessions implements the refresh-token ledger on PostgreSQL.
type PGSessions struct {
	db *sql.DB
}

func NewPGSessions(db *sql.DB) *PGSessions {
	return &PGSessions{db: db}
}

var _ SessionStore = (*PGSessions)(nil)

func (s *PGSessions) Insert(ctx context.Context, rec *RefreshTokenRecord) error {
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, account_id, token, revoked, expires_at, created_at)
		 values($1,$2,$3,$4,$5,$6)`,
		rec.ID, rec.AccountID, rec.Token, rec.Revoked, rec.ExpiresAt, rec.CreatedAt,
	)
	return err
}

func (s *PGSessions) FindByAccountAndToken(ctx context.Context, accountID, token string) (*RefreshTokenRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, account_id, token, revoked, expires_at, created_at
		 from refresh_tokens where account_id=$1 and token=$2`,
		accountID, token)
	var rec RefreshTokenRecord
	err := row.Scan(&rec.ID, &rec.AccountID, &rec.Token, &rec.Revoked, &rec.ExpiresAt, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("refresh token record not found")
		}
		return nil, err
	}
	return &rec, nil
}

// DeleteByID is a compare-and-delete: the single-row DELETE is atomic
// in Postgres, so of two rotations racing on the same record exactly
// one sees an affected row.
func (s *PGSessions) DeleteByID(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `delete from refresh_tokens where id=$1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PGSessions) RevokeByID(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `update refresh_tokens set revoked=true where id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("refresh token record not found")
	}
	return nil
}

func (s *PGSessions) RevokeAllByAccount(ctx context.Context, accountID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true where account_id=$1 and not revoked`, accountID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PGSessions) FindNonRevokedByAccount(ctx context.Context, accountID string) ([]*RefreshTokenRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, account_id, token, revoked, expires_at, created_at
		 from refresh_tokens where account_id=$1 and not revoked order by created_at`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RefreshTokenRecord
	for rows.Next() {
		var rec RefreshTokenRecord
		if err := rows.Scan(&rec.ID, &rec.AccountID, &rec.Token, &rec.Revoked, &rec.ExpiresAt, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
