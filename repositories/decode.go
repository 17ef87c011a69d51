package repositories

import (
	"encoding/json"

	"chat-direct/domain"
)

// Decode helpers for tooling that reads badger values outside the
// repositories, such as the inspect command.

func DecodeMessage(val []byte) (domain.Message, error) {
	var record messageRecord
	if err := json.Unmarshal(val, &record); err != nil {
		return domain.Message{}, err
	}
	return toMessage(record)
}

func DecodeConversation(val []byte) (domain.Conversation, error) {
	var record conversationRecord
	if err := json.Unmarshal(val, &record); err != nil {
		return domain.Conversation{}, err
	}
	return toConversation(record)
}

func DecodeUser(val []byte) (domain.User, error) {
	var record userRecord
	if err := json.Unmarshal(val, &record); err != nil {
		return domain.User{}, err
	}
	return toUser(record)
}
