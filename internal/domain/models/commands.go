package models

import "strings"

// CommandType enumerates supported chat command categories.
type CommandType string

const (
	CommandSell    CommandType = "sell"
	CommandBuy     CommandType = "buy"
	CommandExpense CommandType = "expense"
	CommandStock   CommandType = "stock"
	CommandBalance CommandType = "balance"
	CommandDelete  CommandType = "delete"
	CommandUndo    CommandType = "undo"
	CommandReport  CommandType = "report"
	CommandHelp    CommandType = "help"
	CommandUnknown CommandType = "unknown"
)

var commandAliases = map[string]CommandType{
	"sell":    CommandSell,
	"sold":    CommandSell,
	"uza":     CommandSell,
	"buy":     CommandBuy,
	"bought":  CommandBuy,
	"nunua":   CommandBuy,
	"expense": CommandExpense,
	"lipa":    CommandExpense,
	"stock":   CommandStock,
	"balance": CommandBalance,
	"delete":  CommandDelete,
	"undo":    CommandUndo,
	"report":  CommandReport,
	"help":    CommandHelp,
}

// Command represents a parsed trader instruction extracted from WhatsApp text.
type Command struct {
	Type CommandType
	Raw  string
	Args []string
}

// IsCommand reports whether message uses the slash syntax. Anything else is free text
// for the transaction parser.
func IsCommand(message string) bool {
	return strings.HasPrefix(strings.TrimSpace(message), "/")
}

// ParseCommand derives a Command from a slash message. Arguments keep their case.
func ParseCommand(message string) Command {
	tokens := strings.Fields(message)
	cmd := Command{Type: CommandUnknown, Raw: message}
	if len(tokens) == 0 {
		return cmd
	}

	head := strings.ToLower(strings.TrimPrefix(tokens[0], "/"))
	if t, ok := commandAliases[head]; ok {
		cmd.Type = t
	}

	if len(tokens) > 1 {
		cmd.Args = tokens[1:]
	}

	return cmd
}
