package database

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tigerroll/weather-pipeline/pkg/batch/util/exception"
)

// Dialect はデータベースタイプごとの SQL の差異を吸収します。
type Dialect struct {
	Name          string
	TextType      string
	FloatType     string
	TimestampType string
	numbered      bool // true の場合 $1, $2 ... 形式のプレースホルダ
}

var dialects = map[string]Dialect{
	"postgres":  {Name: "postgres", TextType: "VARCHAR(255)", FloatType: "DOUBLE PRECISION", TimestampType: "TIMESTAMPTZ", numbered: true},
	"redshift":  {Name: "redshift", TextType: "VARCHAR(255)", FloatType: "DOUBLE PRECISION", TimestampType: "TIMESTAMPTZ", numbered: true},
	"mysql":     {Name: "mysql", TextType: "VARCHAR(255)", FloatType: "DOUBLE", TimestampType: "DATETIME(6)"},
	"sqlite3":   {Name: "sqlite3", TextType: "TEXT", FloatType: "REAL", TimestampType: "TIMESTAMP"},
	"snowflake": {Name: "snowflake", TextType: "VARCHAR", FloatType: "FLOAT", TimestampType: "TIMESTAMP_TZ"},
}

// DialectFor はデータベースタイプに対応する Dialect を返します。
func DialectFor(dbType string) (Dialect, error) {
	d, ok := dialects[strings.ToLower(dbType)]
	if !ok {
		return Dialect{}, exception.NewBatchErrorf("database", exception.KindPersistence, "未対応のデータベースタイプ: %s", dbType)
	}
	return d, nil
}

// Placeholder は n 番目 (1 始まり) のバインド変数を返します。
func (d Dialect) Placeholder(n int) string {
	if d.numbered {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Placeholders は 1 から n までのバインド変数をカンマ区切りで返します。
func (d Dialect) Placeholders(n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = d.Placeholder(i + 1)
	}
	return strings.Join(ps, ", ")
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidateIdentifier はテーブル名などの識別子が SQL にそのまま埋め込める形式かを検証します。
// 長さは PostgreSQL の識別子上限に合わせて 63 文字までです。
func ValidateIdentifier(name string) error {
	if !identifierRe.MatchString(name) {
		return exception.NewBatchErrorf("database", exception.KindPersistence, "不正な識別子です: %q", name)
	}
	return nil
}
