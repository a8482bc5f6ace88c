package usecase

import (
	"fmt"

	"telegram-results-bot/internal/domain/model"
	"telegram-results-bot/internal/domain/ports/adapter"
)

func (uc *ConversationUseCase) mainMenuKeyboard() [][]adapter.InlineButton {
	return [][]adapter.InlineButton{
		{{Text: uc.tr.T("btn_search_name"), Data: cbByName}},
		{{Text: uc.tr.T("btn_search_examno"), Data: cbByExamNo}},
	}
}

// governoratesKeyboard lays governorate choices out two per row, with a
// back-to-menu row at the bottom.
func (uc *ConversationUseCase) governoratesKeyboard(govs []string) [][]adapter.InlineButton {
	rows := make([][]adapter.InlineButton, 0, len(govs)/2+2)
	for i := 0; i < len(govs); i += 2 {
		row := []adapter.InlineButton{{Text: govs[i], Data: prefixGov + govs[i]}}
		if i+1 < len(govs) {
			row = append(row, adapter.InlineButton{Text: govs[i+1], Data: prefixGov + govs[i+1]})
		}
		rows = append(rows, row)
	}
	rows = append(rows, []adapter.InlineButton{{Text: uc.tr.T("btn_back_main"), Data: cbMainMenu}})
	return rows
}

func (uc *ConversationUseCase) studentsKeyboard(students []*model.Student) [][]adapter.InlineButton {
	rows := make([][]adapter.InlineButton, 0, len(students)+1)
	for i, s := range students {
		rows = append(rows, []adapter.InlineButton{{
			Text: fmt.Sprintf("%d. %s", i+1, orUnknown(s.Name)),
			Data: prefixPick + s.ExamNo,
		}})
	}
	rows = append(rows, []adapter.InlineButton{{Text: uc.tr.T("btn_back_main"), Data: cbMainMenu}})
	return rows
}

func (uc *ConversationUseCase) resultActionsKeyboard(examNo string) [][]adapter.InlineButton {
	return [][]adapter.InlineButton{
		{{Text: uc.tr.T("btn_share"), Data: prefixShare + examNo}},
		{{Text: uc.tr.T("btn_another_search"), Data: cbMainMenu}},
	}
}

func (uc *ConversationUseCase) backKeyboard() [][]adapter.InlineButton {
	return [][]adapter.InlineButton{
		{{Text: uc.tr.T("btn_back_main"), Data: cbMainMenu}},
	}
}

func (uc *ConversationUseCase) errorKeyboard() [][]adapter.InlineButton {
	return [][]adapter.InlineButton{
		{{Text: uc.tr.T("btn_retry"), Data: cbMainMenu}},
	}
}

func (uc *ConversationUseCase) subscriptionKeyboard() [][]adapter.InlineButton {
	return [][]adapter.InlineButton{
		{{Text: uc.tr.T("btn_subscribe", uc.channelName), URL: "https://t.me/" + uc.channelUser}},
		{{Text: uc.tr.T("btn_check_subscription"), Data: cbCheckSub}},
	}
}
