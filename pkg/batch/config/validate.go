package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tigerroll/weather-pipeline/pkg/batch/util/exception"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateDatabase, DatabaseConfig{})
	return v
}

// validateDatabase はデータベースタイプごとに必須となる項目を検証します。
func validateDatabase(sl validator.StructLevel) {
	db := sl.Current().Interface().(DatabaseConfig)

	require := func(value any, field string) {
		switch v := value.(type) {
		case string:
			if strings.TrimSpace(v) == "" {
				sl.ReportError(v, field, field, "required_for_type", db.Type)
			}
		case int:
			if v <= 0 {
				sl.ReportError(v, field, field, "required_for_type", db.Type)
			}
		}
	}

	switch strings.ToLower(db.Type) {
	case "postgres", "redshift", "mysql":
		require(db.Host, "Host")
		require(db.Port, "Port")
		require(db.Database, "Database")
		require(db.User, "User")
		require(db.Password, "Password")
	case "sqlite3":
		require(db.Database, "Database")
	case "snowflake":
		require(db.Account, "Account")
		require(db.Database, "Database")
		require(db.User, "User")
		require(db.Password, "Password")
	}
}

// Validate は設定値を検証します。必須設定の欠落は起動時の致命的なエラーです。
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return exception.NewConfigError("config", "設定の検証に失敗しました", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return exception.NewConfigError("config", "設定が不正です: "+strings.Join(fields, ", "), err)
}
