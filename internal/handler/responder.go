package handler

import (
	"errors"
	"strconv"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"promo-code-bot/internal/config"
	"promo-code-bot/internal/model"
)

var errNoCannedMessage = errors.New("no canned message configured")

// fallbackTexts are used when no broadcast channel is configured or a
// message id is missing for the outcome.
var fallbackTexts = map[string]map[model.OutcomeKind]string{
	"uz": {
		model.OutcomeInvalidFormat:  "❌ Noto'g'ri kod formati kiritdingiz.",
		model.OutcomeLimitReached:   "⚠️ Siz kod kiritish limitiga yetdingiz.",
		model.OutcomeNotFound:       "❌ Bunday kod topilmadi.",
		model.OutcomeAlreadyClaimed: "⚠️ Bu kod allaqachon ishlatilgan.",
		model.OutcomePlainSuccess:   "✅ Kodingiz qabul qilindi!",
		model.OutcomePrizeSuccess:   "🎉 Tabriklaymiz, sovg'a yutdingiz!",
	},
	"ru": {
		model.OutcomeInvalidFormat:  "❌ Вы ввели неверный формат кода.",
		model.OutcomeLimitReached:   "⚠️ Вы достигли лимита ввода кодов.",
		model.OutcomeNotFound:       "❌ Такой код не найден.",
		model.OutcomeAlreadyClaimed: "⚠️ Этот код уже использован.",
		model.OutcomePlainSuccess:   "✅ Ваш код принят!",
		model.OutcomePrizeSuccess:   "🎉 Поздравляем, вы выиграли приз!",
	},
}

// Responder turns redemption outcomes into user-facing replies. Canned
// messages live in a broadcast channel and are forwarded by numeric id so
// content staff can edit them without a deploy.
type Responder struct {
	cfg *config.MessagesConfig
}

// NewResponder creates a new Responder instance.
func NewResponder(cfg *config.MessagesConfig) *Responder {
	return &Responder{cfg: cfg}
}

// SendOutcome replies to a submission with the canned message for the
// outcome, falling back to plain text.
func (r *Responder) SendOutcome(c tele.Context, lang string, outcome *model.Outcome) error {
	ids := r.cfg.MessageIDs(lang)

	var msgID int
	switch outcome.Kind {
	case model.OutcomeLimitReached:
		msgID = ids.UsageLimit
	case model.OutcomeNotFound:
		msgID = ids.CodeNotFound
	case model.OutcomeAlreadyClaimed:
		msgID = ids.CodeUsed
	case model.OutcomePlainSuccess:
		msgID = ids.CodeAccepted
	case model.OutcomePrizeSuccess:
		msgID = ids.PrizeByTier[string(outcome.Tier)]
		if msgID == 0 {
			msgID = ids.CodeAccepted
		}
	}

	if err := r.forward(c, msgID); err == nil {
		return nil
	}
	return c.Reply(r.fallback(lang, outcome.Kind))
}

// SendStart delivers the campaign intro message.
func (r *Responder) SendStart(c tele.Context, lang string) error {
	if err := r.forward(c, r.cfg.MessageIDs(lang).Start); err == nil {
		return nil
	}
	return c.Reply("Kodingizni yuboring (masalan: ABCDEF-1234).")
}

func (r *Responder) forward(c tele.Context, msgID int) error {
	if r.cfg.ChannelID == 0 || msgID == 0 {
		return errNoCannedMessage
	}
	stored := tele.StoredMessage{
		MessageID: strconv.Itoa(msgID),
		ChatID:    r.cfg.ChannelID,
	}
	if _, err := c.Bot().Forward(c.Sender(), stored); err != nil {
		log.Warn().Err(err).Int("message_id", msgID).Msg("Failed to forward canned message")
		return err
	}
	return nil
}

func (r *Responder) fallback(lang string, kind model.OutcomeKind) string {
	texts, ok := fallbackTexts[lang]
	if !ok {
		texts = fallbackTexts["uz"]
	}
	return texts[kind]
}
