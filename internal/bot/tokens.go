package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/d2avids/helper-bot/internal/match"
)

// Корреляционные токены живут в callback data инлайн-кнопок и обязаны
// ходить туда-обратно байт в байт. В ядре они типизированы; строковая
// форма существует только здесь, на транспортной границе.

const tokenTimeLayout = "2006-01-02T15:04:05"

const confirmPrefix = "confirm_"

// EncodeSelection: "<helperInternalID>|<startISO>|<endISO>".
func EncodeSelection(sel match.Selection) string {
	return fmt.Sprintf("%d|%s|%s",
		sel.HelperID,
		sel.Start.Format(tokenTimeLayout),
		sel.End.Format(tokenTimeLayout))
}

func ParseSelection(data string) (match.Selection, bool) {
	parts := strings.Split(data, "|")
	if len(parts) != 3 {
		return match.Selection{}, false
	}
	helperID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return match.Selection{}, false
	}
	start, err := time.Parse(tokenTimeLayout, parts[1])
	if err != nil {
		return match.Selection{}, false
	}
	end, err := time.Parse(tokenTimeLayout, parts[2])
	if err != nil {
		return match.Selection{}, false
	}
	return match.Selection{HelperID: helperID, Start: start, End: end}, true
}

// EncodeConfirm: "confirm_<yes|no>_<requesterTelegramID>_<helperInternalID>".
func EncodeConfirm(r match.ConfirmReply) string {
	answer := "no"
	if r.Yes {
		answer = "yes"
	}
	return fmt.Sprintf("%s%s_%d_%d", confirmPrefix, answer, r.RequesterTelegramID, r.HelperID)
}

func ParseConfirm(data string) (match.ConfirmReply, bool) {
	if !strings.HasPrefix(data, confirmPrefix) {
		return match.ConfirmReply{}, false
	}
	parts := strings.Split(strings.TrimPrefix(data, confirmPrefix), "_")
	if len(parts) != 3 {
		return match.ConfirmReply{}, false
	}
	if parts[0] != "yes" && parts[0] != "no" {
		return match.ConfirmReply{}, false
	}
	requesterTG, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return match.ConfirmReply{}, false
	}
	helperID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return match.ConfirmReply{}, false
	}
	return match.ConfirmReply{
		Yes:                 parts[0] == "yes",
		RequesterTelegramID: requesterTG,
		HelperID:            helperID,
	}, true
}
