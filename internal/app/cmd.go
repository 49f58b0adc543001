package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はチャットAPIサーバーとして起動する。
	CommandServe Command = "serve"
	// CommandWorker はセッション・プレゼンスのメンテナンスワーカーとして起動する。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は稼働中のAPIサーバーの/healthを確認して終了する。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

var knownCommands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand はコマンドライン引数の先頭からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := knownCommands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}

// NeedsDatabase はコマンドがDB接続を必要とするかを返す。
func (c Command) NeedsDatabase() bool {
	return c != CommandHealthcheck
}
