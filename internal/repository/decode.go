package repository

import (
	"fmt"
	"strings"

	"greencredits/internal/model"
	"greencredits/internal/timestamp"
)

// DecodeUser maps a users_data document. The document ID doubles as the
// email unless the document carries its own.
func DecodeUser(id string, data map[string]any) model.User {
	u := model.User{
		UserID: id,
		Email:  id,
		Home:   stringField(data, "home"),
	}
	if email := stringField(data, "email"); email != "" {
		u.Email = email
	}
	u.LastActive = timestamp.From(data["lastActive"])
	if u.LastActive.IsAbsent() {
		u.LastActive = timestamp.From(data["lastUpdated"])
	}
	return u
}

// DecodeTrip maps a trip document. Numeric fields are left raw; missing
// timestamps stay absent.
func DecodeTrip(id, userID string, data map[string]any) model.Trip {
	return model.Trip{
		ID:            id,
		UserID:        userID,
		Status:        stringField(data, "status"),
		TransportMode: stringField(data, "transportMode"),
		Credits:       data["carbonCredits"],
		Distance:      data["distance"],
		CreatedAt:     timestamp.From(data["createdAt"]),
		StartTime:     timestamp.From(data["startTime"]),
		LastUpdated:   timestamp.From(data["lastUpdated"]),
	}
}

func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	default:
		return fmt.Sprint(v)
	}
}
