package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"promo-code-bot/internal/config"
	"promo-code-bot/internal/pkg/lock"
	"promo-code-bot/internal/service"
)

// SubmitHandler routes participant messages: the registration flow for new
// users and code submissions for everyone else.
type SubmitHandler struct {
	cfg        *config.Config
	sessions   *Sessions
	account    *service.AccountService
	redemption *service.RedemptionService
	responder  *Responder
	userLock   *lock.UserLock
}

// NewSubmitHandler creates a new SubmitHandler.
func NewSubmitHandler(
	cfg *config.Config,
	sessions *Sessions,
	account *service.AccountService,
	redemption *service.RedemptionService,
	responder *Responder,
	userLock *lock.UserLock,
) *SubmitHandler {
	return &SubmitHandler{
		cfg:        cfg,
		sessions:   sessions,
		account:    account,
		redemption: redemption,
		responder:  responder,
		userLock:   userLock,
	}
}

// HandleStart handles the /start command. New participants are taken
// through the name and phone registration steps before they can submit
// codes.
func (h *SubmitHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	p, _, err := h.account.EnsureParticipant(ctx, sender.ID, sender.FirstName, sender.LastName, sender.LanguageCode)
	if err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to ensure participant")
		return c.Reply("⚠️ Xatolik yuz berdi, keyinroq urinib ko'ring.")
	}

	if p.FirstName == "" {
		h.sessions.Set(sender.ID, Session{State: StateRegisterName})
		return c.Reply("Ismingizni kiriting:")
	}
	if p.PhoneNumber == "" {
		h.sessions.Set(sender.ID, Session{State: StateRegisterPhone})
		return h.askPhone(c)
	}

	h.sessions.Reset(sender.ID)
	return h.responder.SendStart(c, p.Lang)
}

// HandleText routes plain text messages by the sender's session state.
// Admins with a pending upload mode never reach the redemption path.
func (h *SubmitHandler) HandleText(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	sess := h.sessions.Get(sender.ID)
	switch sess.State {
	case StateRegisterName:
		return h.handleName(c)
	case StateRegisterPhone:
		return h.handlePhoneText(c)
	}

	if h.cfg.IsAdmin(sender.ID) && sess.Mode != UploadNone {
		return c.Reply("📎 Fayl yuboring yoki /cancel bilan bekor qiling.")
	}

	return h.handleSubmission(c)
}

// HandleContact stores the phone number shared via the contact button.
func (h *SubmitHandler) HandleContact(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	contact := c.Message().Contact
	if sender == nil || contact == nil {
		return nil
	}

	// Only accept the sender's own contact card.
	if contact.UserID != sender.ID {
		return c.Reply("⚠️ Iltimos, o'zingizning raqamingizni yuboring.")
	}

	if err := h.account.RegisterPhone(ctx, sender.ID, contact.PhoneNumber); err != nil {
		if errors.Is(err, service.ErrInvalidPhone) {
			return c.Reply("⚠️ Telefon raqami noto'g'ri, qaytadan yuboring.")
		}
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to register phone")
		return c.Reply("⚠️ Xatolik yuz berdi, keyinroq urinib ko'ring.")
	}

	h.sessions.Reset(sender.ID)
	if err := c.Reply("✅ Ro'yxatdan o'tdingiz!", &tele.ReplyMarkup{RemoveKeyboard: true}); err != nil {
		return err
	}
	return h.responder.SendStart(c, sender.LanguageCode)
}

func (h *SubmitHandler) handleName(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()

	name := strings.TrimSpace(c.Text())
	if name == "" || len(name) > 100 {
		return c.Reply("⚠️ Ismingizni kiriting:")
	}

	if err := h.account.RegisterName(ctx, sender.ID, name); err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to register name")
		return c.Reply("⚠️ Xatolik yuz berdi, keyinroq urinib ko'ring.")
	}

	h.sessions.Set(sender.ID, Session{State: StateRegisterPhone})
	return h.askPhone(c)
}

func (h *SubmitHandler) handlePhoneText(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()

	if err := h.account.RegisterPhone(ctx, sender.ID, c.Text()); err != nil {
		if errors.Is(err, service.ErrInvalidPhone) {
			return c.Reply("⚠️ Telefon raqami noto'g'ri. Masalan: +998901234567")
		}
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to register phone")
		return c.Reply("⚠️ Xatolik yuz berdi, keyinroq urinib ko'ring.")
	}

	h.sessions.Reset(sender.ID)
	if err := c.Reply("✅ Ro'yxatdan o'tdingiz!", &tele.ReplyMarkup{RemoveKeyboard: true}); err != nil {
		return err
	}
	return h.responder.SendStart(c, sender.LanguageCode)
}

func (h *SubmitHandler) handleSubmission(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()

	p, _, err := h.account.EnsureParticipant(ctx, sender.ID, sender.FirstName, sender.LastName, sender.LanguageCode)
	if err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to ensure participant")
		return c.Reply("⚠️ Xatolik yuz berdi, keyinroq urinib ko'ring.")
	}

	// Serialize this participant's submissions so the usage cap check and
	// the claim run without interleaving.
	h.userLock.Lock(sender.ID)
	outcome, err := h.redemption.Redeem(ctx, c.Text(), sender.ID)
	h.userLock.Unlock(sender.ID)

	if err != nil {
		if errors.Is(err, service.ErrConsistency) {
			log.Error().Err(err).Int64("user_id", sender.ID).Msg("Claim consistency violation")
		} else {
			log.Error().Err(err).Int64("user_id", sender.ID).Msg("Redemption failed")
		}
		return c.Reply("⚠️ Xatolik yuz berdi, keyinroq urinib ko'ring.")
	}

	return h.responder.SendOutcome(c, p.Lang, outcome)
}

func (h *SubmitHandler) askPhone(c tele.Context) error {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}
	btn := markup.Contact("📱 Raqamni yuborish")
	markup.Reply(markup.Row(btn))
	return c.Reply("Telefon raqamingizni yuboring:", markup)
}
