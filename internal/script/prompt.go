package script

import (
	"fmt"
	"strings"

	"github.com/book-expert/podcast-service/internal/core"
)

// DefaultClosing is spoken once at the end of every episode.
const DefaultClosing = "זה הכול להיום, ילדים! תודה שהקשבתם. תמשיכו לשאול שאלות ולגלות דברים חדשים, ונתראה בפרק הבא!"

// DefaultStopSequences are openers of a closing paragraph. Generation stops
// before the model writes its own farewell.
var DefaultStopSequences = []string{"לסיכום", "ולסיום", "תודה שהקשבתם", "נתראה בפרק"}

// PromptSet holds the language-specific instructions sent to the oracle.
type PromptSet struct {
	System       string
	Tones        map[core.AgeProfile]string
	Draft        string
	Continuation string
}

// HebrewPrompts returns the default prompt set for Hebrew children's episodes.
func HebrewPrompts() PromptSet {
	return PromptSet{
		System: "אתה מספר סיפורים ומורה לילדים. אתה מסביר נושאים בעברית פשוטה, חמה ומדויקת. " +
			"אל תכתוב משפטי סיכום, פרידה או סיום, הסיום יתווסף בנפרד.",
		Tones: map[core.AgeProfile]string{
			core.AgeYoung: "הקהל: ילדים בגילאי 3 עד 6. השתמש במשפטים קצרים מאוד, מילים פשוטות, " +
				"דוגמאות מחיי היום-יום וחזרות עדינות.",
			core.AgeStandard: "הקהל: ילדים בגילאי 7 עד 12. שלב עובדה מפתיעה אחת או שתיים, " +
				"הסברים ברורים ודוגמאות מוחשיות.",
		},
		Draft: "היי ילדים! כתוב תסריט לפרק פודקאסט על הנושא: %s.\n\n" +
			"מידע רקע:\n%s\n\n" +
			"כתוב לפחות %d תווים ולא יותר מ-%d תווים. " +
			"טקסט רציף לקריאה בקול, בלי כותרות, בלי רשימות ובלי הוראות במה.",
		Continuation: "המשך מאותה נקודה. הוסף עד %d תווים לכל היותר, בלי לחזור על מה שכבר נכתב, " +
			"באותו סגנון ובלי משפטי סיום. עצור בסוף משפט.",
	}
}

func (p PromptSet) systemTurn(profile core.AgeProfile) core.Turn {
	tone, ok := p.Tones[profile]
	if !ok {
		tone = p.Tones[core.AgeStandard]
	}

	return core.Turn{Role: core.RoleSystem, Content: strings.TrimSpace(p.System + "\n" + tone)}
}

func (p PromptSet) draftTurn(topic, summary string, budget LengthBudget) core.Turn {
	return core.Turn{
		Role:    core.RoleUser,
		Content: fmt.Sprintf(p.Draft, topic, summary, budget.BodyGoalChars, budget.MaxChars),
	}
}

func (p PromptSet) continuationTurn(need int) core.Turn {
	return core.Turn{Role: core.RoleUser, Content: fmt.Sprintf(p.Continuation, need)}
}
