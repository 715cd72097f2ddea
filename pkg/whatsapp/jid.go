package whatsapp

import (
	"strings"

	"go.mau.fi/whatsmeow/types"
)

// ComposeJID accepts a full JID ("5511999999999@s.whatsapp.net",
// "1203630...@g.us") or a bare phone/group id and returns the chat JID.
func ComposeJID(id string) (types.JID, error) {
	id = strings.TrimSpace(id)
	if strings.ContainsRune(id, '@') {
		parsed, err := types.ParseJID(id)
		if err != nil || parsed.User == "" {
			return types.EmptyJID, ErrInvalidDestination
		}
		return parsed, nil
	}

	user := DecomposeJID(id)
	if user == "" {
		return types.EmptyJID, ErrInvalidDestination
	}
	if strings.ContainsRune(user, '-') || len(user) >= 18 {
		return types.NewJID(user, types.GroupServer), nil
	}
	for _, r := range user {
		if r < '0' || r > '9' {
			return types.EmptyJID, ErrInvalidDestination
		}
	}
	return types.NewJID(user, types.DefaultUserServer), nil
}

// DecomposeJID strips the server part and a leading '+'.
func DecomposeJID(id string) string {
	if strings.ContainsRune(id, '@') {
		buffers := strings.Split(id, "@")
		id = buffers[0]
	}

	id = strings.TrimSpace(id)
	if len(id) > 0 && id[0] == '+' {
		id = id[1:]
	}

	return id
}
