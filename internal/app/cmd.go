package app

import (
	"flag"
	"fmt"
	"io"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は定期スキャンと履歴クリーンアップを実行するワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandScan はスキャンを1サイクルだけ実行して終了することを示す。
	CommandScan Command = "scan"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch Command(args[0]) {
	case CommandWorker, CommandScan, CommandMigrate, CommandHealthcheck:
		return Command(args[0])
	default:
		return CommandServe
	}
}

// ScanOptions はscanサブコマンドのオプション。
type ScanOptions struct {
	// Batch は処理するバッチ番号。負の場合は保存済みのバッチ状態に従う。
	Batch int
}

// ParseScanOptions はscanサブコマンドの引数（サブコマンド名を除く）を解析する。
func ParseScanOptions(args []string, output io.Writer) (ScanOptions, error) {
	fs := flag.NewFlagSet(string(CommandScan), flag.ContinueOnError)
	fs.SetOutput(output)

	opts := ScanOptions{}
	fs.IntVar(&opts.Batch, "batch", -1, "処理するバッチ番号（省略時は保存済みの状態に従う）")

	if err := fs.Parse(args); err != nil {
		return ScanOptions{}, fmt.Errorf("scanの引数が不正です: %w", err)
	}
	if fs.NArg() > 0 {
		return ScanOptions{}, fmt.Errorf("scanの引数が不正です: %v", fs.Args())
	}
	return opts, nil
}
