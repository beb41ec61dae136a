package store

import (
	"encoding/json"
	"fmt"

	"github.com/nguyenlm11/staychat/internal/chat"
)

const (
	keyUser          = "current_user"
	keyToken         = "auth_token"
	keyConversations = "conversations"
)

// SaveUser persists the signed-in user record.
func (db *DB) SaveUser(u chat.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	return db.Set(keyUser, string(data))
}

// User returns the persisted user record, or ErrNotFound when nobody is signed in.
func (db *DB) User() (chat.User, error) {
	var u chat.User
	raw, err := db.Get(keyUser)
	if err != nil {
		return u, err
	}
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return u, fmt.Errorf("unmarshal user: %w", err)
	}
	return u, nil
}

// SaveToken persists the access token used for hub and API authentication.
func (db *DB) SaveToken(token string) error {
	return db.Set(keyToken, token)
}

// Token returns the persisted access token, or ErrNotFound.
func (db *DB) Token() (string, error) {
	return db.Get(keyToken)
}

// ClearAuth removes the persisted user record and access token.
func (db *DB) ClearAuth() error {
	if err := db.Remove(keyUser); err != nil {
		return err
	}
	return db.Remove(keyToken)
}

// SaveConversations persists the conversation list snapshot for warm starts.
func (db *DB) SaveConversations(convs []chat.Conversation) error {
	data, err := json.Marshal(convs)
	if err != nil {
		return fmt.Errorf("marshal conversations: %w", err)
	}
	return db.Set(keyConversations, string(data))
}

// CachedConversations returns the last persisted conversation list. An empty
// cache yields a nil slice and no error.
func (db *DB) CachedConversations() ([]chat.Conversation, error) {
	raw, err := db.Get(keyConversations)
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var convs []chat.Conversation
	if err := json.Unmarshal([]byte(raw), &convs); err != nil {
		return nil, fmt.Errorf("unmarshal conversations: %w", err)
	}
	return convs, nil
}
