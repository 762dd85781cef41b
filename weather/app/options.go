package app

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
)

// ParseOptions はコマンドライン引数を Options に変換します。
// ロケーションは "Paris,FR" のようにカンマを含むことがあるため、値を分割せずにそのまま受け取ります。
// 位置引数もロケーションとして追加されます。
func ParseOptions(name string, args []string) (Options, error) {
	opts := Options{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringArrayVarP(&opts.Locations, "location", "l", nil, "取得するロケーション (複数指定可。省略時は batch.default_location)")
	fs.StringVarP(&opts.Table, "table", "t", "", "観測値を保存するテーブル名 (省略時は batch.table_name)")
	fs.StringVarP(&opts.ReportPath, "output", "o", "", "CSV レポートのパス (省略時は report.path)")
	fs.StringVar(&opts.EnvFilePath, "env-file", "", ".env ファイルのパス (省略時は ENV_FILE_PATH または .env)")
	fs.BoolVar(&opts.CheckDB, "check-db", false, "データベースへの接続確認のみを行って終了する")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-l location ...] [-t table] [-o report.csv]\n", name)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}
	opts.Locations = append(opts.Locations, fs.Args()...)

	if opts.EnvFilePath == "" {
		opts.EnvFilePath = os.Getenv("ENV_FILE_PATH")
		if opts.EnvFilePath == "" {
			opts.EnvFilePath = ".env" // デフォルトのパス
		}
	}
	return opts, nil
}
