package adapter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kavik/groupwarden-go/internal/constants"
	"github.com/kavik/groupwarden-go/internal/domain"
	"github.com/kavik/groupwarden-go/internal/util"
	pkgerrors "github.com/kavik/groupwarden-go/pkg/errors"
)

// StatEntry represents a single ranked row for chat statistics output.
type StatEntry struct {
	Name     string
	Messages int64
}

// ResponseFormatter formats bot responses
type ResponseFormatter struct {
	prefix string
}

// NewResponseFormatter creates a new ResponseFormatter
func NewResponseFormatter(prefix string) *ResponseFormatter {
	if strings.TrimSpace(prefix) == "" {
		prefix = "/"
	}
	return &ResponseFormatter{prefix: prefix}
}

// FormatStart formats the first-contact greeting
func (f *ResponseFormatter) FormatStart(botName string) string {
	if botName == "" {
		botName = "GroupWarden"
	}
	return fmt.Sprintf("🛡️ %s keeps this chat tidy.\n\n💡 %shelp shows everything I can do.", botName, f.prefix)
}

// FormatHelp formats help message
func (f *ResponseFormatter) FormatHelp() string {
	p := f.prefix
	var sb strings.Builder

	sb.WriteString("🛡️ GroupWarden commands\n\n")

	sb.WriteString("🔨 Moderation (admins)\n")
	sb.WriteString(fmt.Sprintf("  %swarn [reply|id] [reason]\n", p))
	sb.WriteString(fmt.Sprintf("  %sunwarn [reply|id]\n", p))
	sb.WriteString(fmt.Sprintf("  %swarns [reply|id]\n", p))
	sb.WriteString(fmt.Sprintf("  %smute [reply|id] [duration, e.g. 30m 2h 7d]\n", p))
	sb.WriteString(fmt.Sprintf("  %sunmute [reply|id]\n", p))
	sb.WriteString(fmt.Sprintf("  %sban [reply|id], %sunban [id]\n", p, p))
	sb.WriteString(fmt.Sprintf("  %skick [reply|id]\n\n", p))

	sb.WriteString("📌 Notes\n")
	sb.WriteString(fmt.Sprintf("  %snote <key> <text> (admins)\n", p))
	sb.WriteString(fmt.Sprintf("  %sgetnote <key>\n", p))
	sb.WriteString(fmt.Sprintf("  %snotes\n", p))
	sb.WriteString(fmt.Sprintf("  %sdelnote <key> (admins)\n\n", p))

	sb.WriteString("🔎 Lookups\n")
	sb.WriteString(fmt.Sprintf("  %sweather <city>\n", p))
	sb.WriteString(fmt.Sprintf("  %sdefine <word>\n", p))
	sb.WriteString(fmt.Sprintf("  %stranslate <lang> <text>\n", p))
	sb.WriteString(fmt.Sprintf("  %sai <question>\n\n", p))

	sb.WriteString("🎲 Fun\n")
	sb.WriteString(fmt.Sprintf("  %sdice [sides], %scoin, %sslap, %shug\n\n", p, p, p, p))

	sb.WriteString("ℹ️ Info\n")
	sb.WriteString(fmt.Sprintf("  %sid, %swhois [reply|id], %sstats, %srules", p, p, p, p))

	return sb.String()
}

// Moderation

// FormatAdminsOnly formats the refusal sent to non-admins
func (f *ResponseFormatter) FormatAdminsOnly() string {
	return "🚫 Only chat admins can use this command."
}

// FormatNoTarget formats the error shown when no target user was given
func (f *ResponseFormatter) FormatNoTarget() string {
	return "❓ Reply to the user or pass their numeric id."
}

// FormatUsage formats a usage hint for one command
func (f *ResponseFormatter) FormatUsage(usage string) string {
	return fmt.Sprintf("❓ Usage: %s%s", f.prefix, usage)
}

// FormatWarned formats a warn confirmation
func (f *ResponseFormatter) FormatWarned(name string, count, threshold int, reason string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("⚠️ %s has been warned (%d/%d).", name, count, threshold))
	if strings.TrimSpace(reason) != "" {
		sb.WriteString(fmt.Sprintf("\nReason: %s", reason))
	}
	return sb.String()
}

// FormatWarnLimitKick formats the notice sent when warnings hit the limit
func (f *ResponseFormatter) FormatWarnLimitKick(name string, threshold int) string {
	return fmt.Sprintf("🚷 %s reached %d warnings and was removed from the chat. Their warnings were reset.", name, threshold)
}

// FormatUnwarned formats a warning removal confirmation
func (f *ResponseFormatter) FormatUnwarned(name string, remaining int) string {
	return fmt.Sprintf("✅ Removed one warning from %s (%d remaining).", name, remaining)
}

// FormatNoWarnings formats the reply when a user has no warnings
func (f *ResponseFormatter) FormatNoWarnings(name string) string {
	return fmt.Sprintf("ℹ️ %s has no warnings.", name)
}

// FormatWarnCount formats the current warning count
func (f *ResponseFormatter) FormatWarnCount(name string, count, threshold int) string {
	return fmt.Sprintf("⚠️ %s has %d/%d warnings.", name, count, threshold)
}

// FormatMuted formats a mute confirmation
func (f *ResponseFormatter) FormatMuted(name string, d time.Duration) string {
	return fmt.Sprintf("🔇 %s has been muted for %s.", name, util.FormatModDuration(d))
}

// FormatUnmuted formats a mute removal confirmation
func (f *ResponseFormatter) FormatUnmuted(name string) string {
	return fmt.Sprintf("🔊 %s is no longer muted.", name)
}

// FormatBanned formats a ban confirmation
func (f *ResponseFormatter) FormatBanned(name string) string {
	return fmt.Sprintf("⛔ %s has been banned.", name)
}

// FormatUnbanned formats a ban removal confirmation
func (f *ResponseFormatter) FormatUnbanned(name string) string {
	return fmt.Sprintf("✅ %s has been unbanned.", name)
}

// FormatKicked formats a kick confirmation
func (f *ResponseFormatter) FormatKicked(name string) string {
	return fmt.Sprintf("👢 %s has been kicked.", name)
}

// Notes

// FormatNoteSaved formats a note save confirmation
func (f *ResponseFormatter) FormatNoteSaved(key string) string {
	return fmt.Sprintf("📌 Note #%s saved.", key)
}

// FormatNote formats a stored note
func (f *ResponseFormatter) FormatNote(key, value string) string {
	return fmt.Sprintf("📌 #%s\n%s", key, util.TruncateString(value, constants.StringLimits.NoteValue))
}

// FormatNoteMissing formats the reply for an unknown note key
func (f *ResponseFormatter) FormatNoteMissing(key string) string {
	return fmt.Sprintf("❌ No note saved as #%s.", key)
}

// FormatNoteDeleted formats a note deletion confirmation
func (f *ResponseFormatter) FormatNoteDeleted(key string) string {
	return fmt.Sprintf("🗑️ Note #%s deleted.", key)
}

// FormatNoteList formats the chat's saved note keys
func (f *ResponseFormatter) FormatNoteList(keys []string) string {
	if len(keys) == 0 {
		return fmt.Sprintf("📚 No notes saved yet.\n\n💡 Admins can add one with %snote <key> <text>", f.prefix)
	}

	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📚 Saved notes (%d)\n", len(sorted)))
	for _, key := range sorted {
		sb.WriteString(fmt.Sprintf("  #%s\n", key))
	}
	sb.WriteString(fmt.Sprintf("\n💡 %sgetnote <key> shows one", f.prefix))
	return sb.String()
}

// Rules

// FormatRules formats the chat rules
func (f *ResponseFormatter) FormatRules(rules string) string {
	if strings.TrimSpace(rules) == "" {
		return fmt.Sprintf("📜 No rules set for this chat.\n\n💡 Admins can set them with %ssetrules <text>", f.prefix)
	}
	return fmt.Sprintf("📜 Chat rules\n\n%s", rules)
}

// FormatRulesSet formats the rules update confirmation
func (f *ResponseFormatter) FormatRulesSet() string {
	return "📜 Rules updated."
}

// Lookups

// FormatWeather formats a weather report
func (f *ResponseFormatter) FormatWeather(report *domain.WeatherReport) string {
	if report == nil {
		return f.FormatError("No weather data found.")
	}

	location := report.City
	if report.Country != "" {
		location = fmt.Sprintf("%s, %s", report.City, report.Country)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🌤️ Weather in %s\n", location))
	sb.WriteString(fmt.Sprintf("  🌡️ %.1f°C (feels like %.1f°C)\n", report.TempC, report.FeelsLikeC))
	sb.WriteString(fmt.Sprintf("  💧 Humidity %d%%\n", report.Humidity))
	sb.WriteString(fmt.Sprintf("  💨 Wind %.1f m/s", report.WindSpeed))
	if report.Description != "" {
		sb.WriteString(fmt.Sprintf("\n  ☁️ %s", report.Description))
	}
	return sb.String()
}

// FormatDefinition formats a dictionary definition
func (f *ResponseFormatter) FormatDefinition(def *domain.Definition) string {
	if def == nil || len(def.Meanings) == 0 {
		return f.FormatError("No definition found.")
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📖 %s", def.Term))
	if def.PartOfSpeech != "" {
		sb.WriteString(fmt.Sprintf(" (%s)", def.PartOfSpeech))
	}
	sb.WriteString("\n")

	maxMeanings := len(def.Meanings)
	if maxMeanings > 3 {
		maxMeanings = 3
	}
	for i := 0; i < maxMeanings; i++ {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, def.Meanings[i]))
	}

	if def.Source != "" {
		sb.WriteString(fmt.Sprintf("\n🔗 %s", def.Source))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatTranslation formats a translation result
func (f *ResponseFormatter) FormatTranslation(tr *domain.Translation) string {
	if tr == nil || strings.TrimSpace(tr.Translated) == "" {
		return f.FormatError("No translation produced.")
	}
	return fmt.Sprintf("🌐 %s → %s\n%s", tr.SourceLang, tr.TargetLang, tr.Translated)
}

// FormatAnswer formats an assistant answer
func (f *ResponseFormatter) FormatAnswer(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return f.FormatError("The assistant had nothing to say.")
	}
	return "🤖 " + util.TruncateString(text, constants.StringLimits.MessageText)
}

// FormatDegraded formats the user-facing notice for a failed external
// lookup, keyed off the failure kind.
func (f *ResponseFormatter) FormatDegraded(service string, err error) string {
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeRateLimited:
		return fmt.Sprintf("⏳ %s is rate limited right now. Try again in a few minutes.", service)
	case pkgerrors.CodeTimeout, pkgerrors.CodeDeadlineExceeded:
		return fmt.Sprintf("⌛ %s took too long to respond. Try again.", service)
	case pkgerrors.CodeServiceUnavailable:
		return fmt.Sprintf("🔌 %s is temporarily unavailable. Try again soon.", service)
	default:
		return fmt.Sprintf("❌ %s lookup failed. Try again later.", service)
	}
}

// Info

// FormatIDs formats chat and user identifiers
func (f *ResponseFormatter) FormatIDs(chatID, userID, messageID int64) string {
	var sb strings.Builder
	sb.WriteString("🆔 Identifiers\n")
	sb.WriteString(fmt.Sprintf("  Chat: %d\n", chatID))
	sb.WriteString(fmt.Sprintf("  You: %d\n", userID))
	sb.WriteString(fmt.Sprintf("  Message: %d", messageID))
	return sb.String()
}

// FormatWhois formats the moderation record of one user
func (f *ResponseFormatter) FormatWhois(name string, userID int64, st *domain.ChatState, threshold int, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("👤 %s (%d)\n", name, userID))

	if st == nil {
		sb.WriteString("  No record in this chat.")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("  ⚠️ Warnings: %d/%d\n", st.Warnings[userID], threshold))

	if until, ok := st.MutedUntil[userID]; ok && now.Before(until) {
		sb.WriteString(fmt.Sprintf("  🔇 Muted for another %s\n", util.FormatModDuration(until.Sub(now))))
	}
	if st.IsBanned(userID) {
		sb.WriteString("  ⛔ Banned\n")
	}

	if stats, ok := st.Stats[userID]; ok && stats != nil {
		sb.WriteString(fmt.Sprintf("  💬 Messages: %d\n", stats.Messages))
		if !stats.LastSeen.IsZero() {
			sb.WriteString(fmt.Sprintf("  🕐 Last seen: %s\n", stats.LastSeen.UTC().Format("2006-01-02 15:04 MST")))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatChatStats formats ranked activity counters for one chat
func (f *ResponseFormatter) FormatChatStats(total int64, entries []StatEntry) string {
	if total == 0 || len(entries) == 0 {
		return "📊 No activity recorded in this chat yet."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📊 Chat activity (%d messages)\n\n", total))
	for i, entry := range entries {
		sb.WriteString(fmt.Sprintf("%d. %s: %d\n", i+1, entry.Name, entry.Messages))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Membership

// FormatWelcome formats the greeting for newly joined members
func (f *ResponseFormatter) FormatWelcome(names []string, hasRules bool) string {
	if len(names) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("👋 Welcome, %s!", strings.Join(names, ", ")))
	if hasRules {
		sb.WriteString(fmt.Sprintf("\n📜 Please read the chat rules: %srules", f.prefix))
	}
	return sb.String()
}

// FormatFarewell formats the notice for a departed member
func (f *ResponseFormatter) FormatFarewell(name string) string {
	return fmt.Sprintf("👋 %s left the chat.", name)
}

// FormatPing formats the liveness reply
func (f *ResponseFormatter) FormatPing() string {
	return "🏓 Pong!"
}

// FormatError formats error message
func (f *ResponseFormatter) FormatError(message string) string {
	return fmt.Sprintf("❌ %s", message)
}
