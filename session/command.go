package session

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

const commandPrefix = "/"

const helpText = `Available commands:
- /help: show this help
- /name <new name>: change your display name
- /time: show the local time`

// runCommand handles a slash command locally. Commands never reach the wire,
// except /name which re-sends a Register.
func (s *Session) runCommand(input string) error {
	word, rest := input, ""
	if i := strings.IndexFunc(input, unicode.IsSpace); i >= 0 {
		word, rest = input[:i], strings.TrimLeftFunc(input[i:], unicode.IsSpace)
	}
	switch strings.ToLower(word) {
	case "/help":
		s.notice(helpText)
	case "/name":
		return s.rename(rest)
	case "/time":
		s.notice("Client time: " + s.now().Format(time.TimeOnly))
	default:
		s.notice("Unknown command. Type /help for the list.")
	}
	return nil
}

func (s *Session) rename(arg string) error {
	if strings.TrimSpace(arg) == "" {
		s.notice("Usage: /name <new name>")
		return errors.ErrInvalidName
	}
	name, err := domain.NewDisplayName(arg)
	if err != nil {
		s.notice("Invalid name.")
		return fmt.Errorf("%w: %w", errors.ErrInvalidName, err)
	}
	if err := s.send(domain.Register{Name: name}); err != nil {
		s.notice("Name not changed, the relay could not be reached.")
		return err
	}
	s.name = name
	s.notice("Name changed to " + string(name))
	return nil
}
