package session

import (
	"fmt"
	"math/rand"

	"github.com/iconichq/automod/internal/gateway"
)

const (
	messageRequestSpeakAndMod = "If you'd like to use my features, please invite me to speak and make me a Moderator. ✳️"
	messageRequestMod         = "If you'd like to use my features, please make me a Moderator. ✳️"
	messageRequestSpeak       = "If you'd like to use my features, please invite me to speak. ✳️"

	messageShareURLIntro = "The share url for this room is:"
	shareURLFormat       = "https://www.clubhouse.com/room/%s"
)

var welcomeVariants = []string{
	"Welcome %s! 🎉",
	"Hey %s, welcome in! 👋",
	"Glad you're here, %s! 🎉",
}

func helloMessage(hostName string) string {
	if hostName == "" {
		return "🤖 Hello! I'm AutoMod! 🎉"
	}
	return fmt.Sprintf("🤖 Hello %s! I'm AutoMod! 🎉", hostName)
}

// joinMessages builds the lines sent right after joining: a hello to the
// host plus, depending on what the bot is still missing, an explicit ask
// so a human moderator can unblock it.
func joinMessages(hostName string, needMod, isSpeaker, isMod bool) []string {
	msgs := []string{helloMessage(hostName)}
	switch {
	case needMod && !isSpeaker:
		msgs = append(msgs, messageRequestSpeakAndMod)
	case needMod && !isMod:
		msgs = append(msgs, messageRequestMod)
	case !isSpeaker:
		msgs = append(msgs, messageRequestSpeak)
	}
	return msgs
}

// welcomeMessage picks the greeting for a user: the configured override
// when present, otherwise a random variant.
func welcomeMessage(user gateway.RoomUser, override string) string {
	if override != "" {
		return override
	}
	return fmt.Sprintf(welcomeVariants[rand.Intn(len(welcomeVariants))], user.FirstName)
}

func shareURLMessages(roomID string) []string {
	return []string{messageShareURLIntro, fmt.Sprintf(shareURLFormat, roomID)}
}
