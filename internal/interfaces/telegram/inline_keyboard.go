package telegram

import (
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ngoclaw/ngoclaw/bridge/internal/application/usecase"
)

const (
	// callbackVoid 无操作按钮 (贴纸标题等)
	callbackVoid = "void"

	suggestionPrefix = "sug:"
	// pickerPrefix 标记 /link 与 /chat 选择器的按钮
	pickerPrefix     = "pick:"
	suggestionCancel = "x"
)

// InlineButton 内联按钮
type InlineButton struct {
	Text         string
	CallbackData string
}

// BuildInlineKeyboard 构建内联键盘
func BuildInlineKeyboard(rows [][]InlineButton) tgbotapi.InlineKeyboardMarkup {
	keyboard := make([][]tgbotapi.InlineKeyboardButton, len(rows))
	for i, row := range rows {
		keyboard[i] = make([]tgbotapi.InlineKeyboardButton, len(row))
		for j, btn := range row {
			// Telegram 回调数据限制 64 字节
			data := btn.CallbackData
			if len(data) > 64 {
				data = data[:64]
			}
			keyboard[i][j] = tgbotapi.NewInlineKeyboardButtonData(btn.Text, data)
		}
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: keyboard}
}

// BuildRecipientKeyboard lists the candidates of a prompt, one per row,
// followed by a cancel button.
func BuildRecipientKeyboard(sug *usecase.Suggestion) tgbotapi.InlineKeyboardMarkup {
	return buildChoiceKeyboard(suggestionPrefix, sug)
}

// BuildPickerKeyboard is the keyboard of a /link or /chat picker.
func BuildPickerKeyboard(sug *usecase.Suggestion) tgbotapi.InlineKeyboardMarkup {
	return buildChoiceKeyboard(pickerPrefix, sug)
}

func buildChoiceKeyboard(prefix string, sug *usecase.Suggestion) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]InlineButton, 0, len(sug.Candidates)+1)
	for i, c := range sug.Candidates {
		rows = append(rows, []InlineButton{{
			Text:         truncateText(c.Label, 60),
			CallbackData: prefix + sug.ID + ":" + strconv.Itoa(i),
		}})
	}
	rows = append(rows, []InlineButton{{
		Text:         "Cancel",
		CallbackData: prefix + sug.ID + ":" + suggestionCancel,
	}})
	return BuildInlineKeyboard(rows)
}

// parseSuggestionCallback 解析 sug:<id>:<index|x>, 取消返回 index -1
func parseSuggestionCallback(data string) (id string, index int, ok bool) {
	return parseChoiceCallback(suggestionPrefix, data)
}

// parsePickerCallback 解析 pick:<id>:<index|x>
func parsePickerCallback(data string) (id string, index int, ok bool) {
	return parseChoiceCallback(pickerPrefix, data)
}

func parseChoiceCallback(prefix, data string) (id string, index int, ok bool) {
	rest, found := strings.CutPrefix(data, prefix)
	if !found {
		return "", 0, false
	}
	sep := strings.LastIndex(rest, ":")
	if sep <= 0 {
		return "", 0, false
	}
	id, choice := rest[:sep], rest[sep+1:]
	if choice == suggestionCancel {
		return id, -1, true
	}
	index, err := strconv.Atoi(choice)
	if err != nil || index < 0 {
		return "", 0, false
	}
	return id, index, true
}
