package apperr

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type pgRule struct {
	code    Code
	message string
}

// Postgres SQLSTATE codes. Keys ending in "*" match a class prefix.
var pgCodes = map[string]pgRule{
	"23505": {CodeAlreadyExists, "the resource already exists"},
	"23503": {CodeValidation, "a referenced resource does not exist"},
	"23514": {CodeValidation, "a value violates a constraint"},
	"23502": {CodeValidation, "a required value is missing"},
	"22001": {CodeValidation, "a value is too long"},
	"22P02": {CodeValidation, "a value has an invalid format"},
	"42501": {CodePermissionDenied, "you do not have permission to do this"},
	"40001": {CodeConflict, "the operation conflicted with another one, please retry"},
	"40P01": {CodeConflict, "the operation conflicted with another one, please retry"},
	"57014": {CodeNetwork, "the operation timed out"},
	"08*":   {CodeNetwork, "the database is unavailable"},
}

// PostgREST error codes, as surfaced by the Supabase REST layer.
var postgrestCodes = map[string]pgRule{
	"PGRST116": {CodeNotFound, "the resource was not found"},
	"PGRST301": {CodeUnauthorized, "your session has expired"},
	"PGRST302": {CodeUnauthorized, "authentication is required"},
}

type substringRule struct {
	needle  string
	code    Code
	message string
}

// Checked in order; the first match wins.
var substringRules = []substringRule{
	{"jwt expired", CodeUnauthorized, "your session has expired"},
	{"invalid jwt", CodeUnauthorized, "your session is invalid"},
	{"invalid login credentials", CodeUnauthorized, "invalid email or password"},
	{"rate limit", CodeRateLimited, "too many requests, please slow down"},
	{"too many requests", CodeRateLimited, "too many requests, please slow down"},
	{"duplicate key", CodeAlreadyExists, "the resource already exists"},
	{"permission denied", CodePermissionDenied, "you do not have permission to do this"},
	{"row-level security", CodePermissionDenied, "you do not have permission to do this"},
	{"timeout", CodeNetwork, "the request timed out"},
	{"connection refused", CodeNetwork, "the service is unavailable"},
	{"no such host", CodeNetwork, "the service is unavailable"},
	{"stripe", CodePayment, "the payment could not be processed"},
	{"operation error s3", CodeStorage, "the file could not be stored"},
}

// Classify maps err onto an AppError. ctx is attached to the result.
func Classify(err error, ctx map[string]interface{}) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		if len(ctx) == 0 {
			return appErr
		}
		return appErr.WithContext(ctx)
	}

	out := classify(err)
	if len(ctx) > 0 {
		out.Context = ctx
	}
	return out
}

func classify(err error) *AppError {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Wrap(err, CodeNotFound, "the resource was not found")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, CodeNetwork, "the request timed out")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if rule, ok := lookupPgCode(pgErr.Code); ok {
			return &AppError{Code: rule.code, Message: rule.message, Details: pgErr.Message, cause: err}
		}
		return Wrap(err, CodeDatabase, "a database error occurred")
	}

	msg := err.Error()
	for code, rule := range postgrestCodes {
		if strings.Contains(msg, code) {
			return Wrap(err, rule.code, rule.message)
		}
	}

	lower := strings.ToLower(msg)
	for _, rule := range substringRules {
		if strings.Contains(lower, rule.needle) {
			return Wrap(err, rule.code, rule.message)
		}
	}

	return Wrap(err, CodeUnknown, "an unexpected error occurred")
}

func lookupPgCode(code string) (pgRule, bool) {
	if rule, ok := pgCodes[code]; ok {
		return rule, true
	}
	if len(code) >= 2 {
		if rule, ok := pgCodes[code[:2]+"*"]; ok {
			return rule, true
		}
	}
	return pgRule{}, false
}
