package command

import "github.com/kavik/groupwarden-go/internal/domain"

// Handler priorities. Enforcement runs before bookkeeping so a muted
// user's message is removed without being counted or expanded.
const (
	PriorityEnforce = 100
	PriorityRecord  = 90
	PriorityDefault = 50
)

// RegisterAll wires every built-in handler into the registry. The
// caller freezes the registry once registration succeeds.
func RegisterAll(reg *Registry, deps *Dependencies) error {
	descriptors := []Descriptor{
		{
			Handler:   NewMuteEnforcer(deps),
			Kinds:     []domain.EventKind{domain.KindMessage},
			Priority:  PriorityEnforce,
			Exclusive: false,
			Tags:      []string{"moderation"},
		},
		{
			Handler:   NewActivityRecorder(deps),
			Kinds:     []domain.EventKind{domain.KindMessage},
			Priority:  PriorityRecord,
			Exclusive: false,
			Tags:      []string{"stats"},
		},
		{
			Handler:   NewNoteRecall(deps),
			Kinds:     []domain.EventKind{domain.KindMessage},
			Match:     MatchesNoteRef,
			Priority:  PriorityDefault,
			Exclusive: false,
			Tags:      []string{"notes"},
		},
		{
			Handler:   NewGreeter(deps),
			Kinds:     []domain.EventKind{domain.KindMemberUpdate},
			Priority:  PriorityDefault,
			Exclusive: true,
			Tags:      []string{"membership"},
		},

		{Handler: NewStartCommand(deps), Commands: []string{"start"}, Exclusive: true, Tags: []string{"basic"}},
		{Handler: NewHelpCommand(deps), Commands: []string{"help"}, Exclusive: true, Tags: []string{"basic"}},
		{Handler: NewPingCommand(deps), Commands: []string{"ping"}, Exclusive: true, Tags: []string{"basic"}},
		{Handler: NewRulesCommand(deps), Commands: []string{"rules"}, Exclusive: true, Tags: []string{"basic"}},
		{Handler: NewSetRulesCommand(deps), Commands: []string{"setrules"}, Exclusive: true, Tags: []string{"basic"}},

		{Handler: NewWarnCommand(deps), Commands: []string{"warn"}, Exclusive: true, Tags: []string{"moderation"}},
		{Handler: NewUnwarnCommand(deps), Commands: []string{"unwarn"}, Exclusive: true, Tags: []string{"moderation"}},
		{Handler: NewWarnsCommand(deps), Commands: []string{"warns"}, Exclusive: true, Tags: []string{"moderation"}},
		{Handler: NewMuteCommand(deps), Commands: []string{"mute"}, Exclusive: true, Tags: []string{"moderation"}},
		{Handler: NewUnmuteCommand(deps), Commands: []string{"unmute"}, Exclusive: true, Tags: []string{"moderation"}},
		{Handler: NewBanCommand(deps), Commands: []string{"ban"}, Exclusive: true, Tags: []string{"moderation"}},
		{Handler: NewUnbanCommand(deps), Commands: []string{"unban"}, Exclusive: true, Tags: []string{"moderation"}},
		{Handler: NewKickCommand(deps), Commands: []string{"kick"}, Exclusive: true, Tags: []string{"moderation"}},

		{Handler: NewNoteCommand(deps), Commands: []string{"note", "save"}, Exclusive: true, Tags: []string{"notes"}},
		{Handler: NewGetNoteCommand(deps), Commands: []string{"getnote", "get"}, Exclusive: true, Tags: []string{"notes"}},
		{Handler: NewNotesCommand(deps), Commands: []string{"notes", "saved"}, Exclusive: true, Tags: []string{"notes"}},
		{Handler: NewDelNoteCommand(deps), Commands: []string{"delnote", "clear"}, Exclusive: true, Tags: []string{"notes"}},

		{Handler: NewWeatherCommand(deps), Commands: []string{"weather"}, Exclusive: true, Tags: []string{"lookup"}},
		{Handler: NewDefineCommand(deps), Commands: []string{"define"}, Exclusive: true, Tags: []string{"lookup"}},
		{Handler: NewTranslateCommand(deps), Commands: []string{"translate", "tr"}, Exclusive: true, Tags: []string{"lookup"}},
		{Handler: NewAskCommand(deps), Commands: []string{"ai", "ask"}, Exclusive: true, Tags: []string{"lookup"}},

		{Handler: NewDiceCommand(deps), Commands: []string{"dice", "roll"}, Exclusive: true, Tags: []string{"fun"}},
		{Handler: NewCoinCommand(deps), Commands: []string{"coin", "flip"}, Exclusive: true, Tags: []string{"fun"}},
		{Handler: NewSlapCommand(deps), Commands: []string{"slap"}, Exclusive: true, Tags: []string{"fun"}},
		{Handler: NewHugCommand(deps), Commands: []string{"hug"}, Exclusive: true, Tags: []string{"fun"}},

		{Handler: NewIDCommand(deps), Commands: []string{"id"}, Exclusive: true, Tags: []string{"info"}},
		{Handler: NewWhoisCommand(deps), Commands: []string{"whois"}, Exclusive: true, Tags: []string{"info"}},
		{Handler: NewChatStatsCommand(deps), Commands: []string{"stats"}, Exclusive: true, Tags: []string{"info"}},
	}

	for _, desc := range descriptors {
		if err := reg.Register(desc); err != nil {
			return err
		}
	}
	return nil
}
