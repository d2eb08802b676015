package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"promo-code-bot/internal/config"
	"promo-code-bot/internal/model"
	"promo-code-bot/internal/service"
)

// Inline buttons the admin flow is wired on. Data-carrying buttons are
// matched by unique; the payload arrives via c.Data().
var (
	BtnUploadCodes   = tele.Btn{Unique: "upload_codes", Text: "📄 Oddiy kodlar"}
	BtnUploadWinners = tele.Btn{Unique: "upload_winners", Text: "🏆 Yutuqli kodlar"}
	BtnPickTier      = tele.Btn{Unique: "pick_tier"}
	BtnPickMonth     = tele.Btn{Unique: "pick_month"}
	BtnClearConfirm  = tele.Btn{Unique: "clear_confirm"}
	BtnClearCancel   = tele.Btn{Unique: "clear_cancel", Text: "❌ Bekor qilish"}
)

// noMonth is the sentinel payload of the "skip month" button.
const noMonth = "-"

var monthNames = []string{
	"yanvar", "fevral", "mart", "aprel", "may", "iyun",
	"iyul", "avgust", "sentabr", "oktabr", "noyabr", "dekabr",
}

var tierLabels = map[model.Tier]string{
	model.TierPremium:  "💎 Premium",
	model.TierStandard: "🎁 Standart",
	model.TierEconomy:  "📦 Ekonom",
	model.TierSymbolic: "🎈 Ramziy",
}

// AdminHandler handles the code upload and maintenance commands. All of its
// routes sit behind the admin middleware.
type AdminHandler struct {
	cfg       *config.Config
	sessions  *Sessions
	ingestion *service.IngestionService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(cfg *config.Config, sessions *Sessions, ingestion *service.IngestionService) *AdminHandler {
	return &AdminHandler{
		cfg:       cfg,
		sessions:  sessions,
		ingestion: ingestion,
	}
}

// HandleUpload handles the /upload command: it opens an upload session and
// asks which population the file is for.
func (h *AdminHandler) HandleUpload(c tele.Context) error {
	markup := &tele.ReplyMarkup{}
	markup.Inline(
		markup.Row(markup.Data(BtnUploadCodes.Text, BtnUploadCodes.Unique)),
		markup.Row(markup.Data(BtnUploadWinners.Text, BtnUploadWinners.Unique)),
	)
	return c.Reply("Qaysi turdagi kodlarni yuklaysiz?", markup)
}

// HandleCancel handles the /cancel command.
func (h *AdminHandler) HandleCancel(c tele.Context) error {
	h.sessions.Reset(c.Sender().ID)
	return c.Reply("✅ Bekor qilindi.")
}

// HandleUploadCodes is the callback for the plain-code upload button.
func (h *AdminHandler) HandleUploadCodes(c tele.Context) error {
	h.sessions.Set(c.Sender().ID, Session{Mode: UploadCodes})
	if err := c.Respond(); err != nil {
		return err
	}
	return h.askMonth(c)
}

// HandleUploadWinners is the callback for the winner-code upload button.
// Winner uploads must pick a tier before anything else.
func (h *AdminHandler) HandleUploadWinners(c tele.Context) error {
	h.sessions.Set(c.Sender().ID, Session{Mode: UploadWinners})
	if err := c.Respond(); err != nil {
		return err
	}

	markup := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, tier := range model.Tiers() {
		rows = append(rows, markup.Row(markup.Data(tierLabels[tier], BtnPickTier.Unique, string(tier))))
	}
	markup.Inline(rows...)
	return c.Edit("Sovg'a darajasini tanlang:", markup)
}

// HandlePickTier is the callback for tier selection during a winner upload.
func (h *AdminHandler) HandlePickTier(c tele.Context) error {
	sender := c.Sender()
	sess := h.sessions.Get(sender.ID)
	if sess.Mode != UploadWinners {
		return c.Respond(&tele.CallbackResponse{Text: "⚠️ Yuklash sessiyasi topilmadi"})
	}

	tier := model.ParseTier(c.Data())
	if tier == "" {
		return c.Respond(&tele.CallbackResponse{Text: "⚠️ Noto'g'ri daraja"})
	}

	sess.Tier = tier
	h.sessions.Set(sender.ID, sess)
	if err := c.Respond(); err != nil {
		return err
	}
	return h.askMonth(c)
}

// HandlePickMonth is the callback for the optional month tag.
func (h *AdminHandler) HandlePickMonth(c tele.Context) error {
	sender := c.Sender()
	sess := h.sessions.Get(sender.ID)
	if sess.Mode == UploadNone {
		return c.Respond(&tele.CallbackResponse{Text: "⚠️ Yuklash sessiyasi topilmadi"})
	}

	if month := c.Data(); month != noMonth {
		sess.Month = month
	}
	h.sessions.Set(sender.ID, sess)
	if err := c.Respond(); err != nil {
		return err
	}
	return c.Edit("📎 Endi kodlar faylini yuboring (CSV yoki matn).")
}

// HandleDocument ingests an uploaded file into the population picked in the
// upload session.
func (h *AdminHandler) HandleDocument(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	sess := h.sessions.Get(sender.ID)
	if sess.Mode == UploadNone {
		return c.Reply("⚠️ Avval /upload buyrug'i bilan yuklashni boshlang.")
	}

	doc := c.Message().Document
	if doc == nil {
		return c.Reply("⚠️ Fayl topilmadi.")
	}

	rc, err := c.Bot().File(&doc.File)
	if err != nil {
		log.Error().Err(err).Str("file_id", doc.FileID).Msg("Failed to download upload")
		return c.Reply("⚠️ Faylni yuklab bo'lmadi, qaytadan urinib ko'ring.")
	}
	defer rc.Close()

	tokens, err := service.ExtractTokens(rc)
	if err != nil {
		log.Error().Err(err).Str("file_name", doc.FileName).Msg("Failed to read upload")
		return c.Reply("⚠️ Faylni o'qib bo'lmadi.")
	}

	target := model.PopulationCode
	if sess.Mode == UploadWinners {
		target = model.PopulationWinner
	}

	started := time.Now()
	sum, err := h.ingestion.Ingest(ctx, tokens, target, sess.Tier, sess.Month)
	if err != nil {
		if errors.Is(err, service.ErrTierRequired) {
			return c.Reply("⚠️ Avval sovg'a darajasini tanlang.")
		}
		log.Error().Err(err).Str("target", string(target)).Msg("Ingestion failed")
		return c.Reply("⚠️ Kodlarni yuklashda xatolik yuz berdi.")
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Str("target", string(target)).
		Int64("accepted", sum.Accepted).
		Int64("duplicates", sum.Duplicates).
		Dur("took", time.Since(started)).
		Msg("Upload ingested")

	h.sessions.Reset(sender.ID)
	return c.Reply(fmt.Sprintf(
		"✅ Yuklash tugadi\n\n"+
			"➕ Qabul qilindi: %d\n"+
			"♻️ Takrorlangan: %d\n"+
			"📦 Bazadagi jami: %d",
		sum.Accepted, sum.Duplicates, sum.TotalAfter,
	))
}

// HandleClearCodes handles the /clear_codes command.
func (h *AdminHandler) HandleClearCodes(c tele.Context) error {
	return h.askClearConfirm(c, model.PopulationCode, "Barcha oddiy kodlar o'chirilsinmi?")
}

// HandleClearWinners handles the /clear_winners command.
func (h *AdminHandler) HandleClearWinners(c tele.Context) error {
	return h.askClearConfirm(c, model.PopulationWinner, "Barcha yutuqli kodlar o'chirilsinmi?")
}

// HandleClearConfirm is the callback that actually retires a population.
func (h *AdminHandler) HandleClearConfirm(c tele.Context) error {
	ctx := context.Background()
	target := model.Population(c.Data())

	n, err := h.ingestion.Clear(ctx, target)
	if err != nil {
		log.Error().Err(err).Str("target", string(target)).Msg("Failed to clear population")
		return c.Respond(&tele.CallbackResponse{Text: "⚠️ Xatolik yuz berdi", ShowAlert: true})
	}

	log.Info().
		Int64("admin_id", c.Sender().ID).
		Str("target", string(target)).
		Int64("retired", n).
		Msg("Population cleared")

	if err := c.Respond(); err != nil {
		return err
	}
	return c.Edit(fmt.Sprintf("✅ %d ta kod o'chirildi.", n))
}

// HandleClearCancel is the callback for backing out of a clear.
func (h *AdminHandler) HandleClearCancel(c tele.Context) error {
	if err := c.Respond(); err != nil {
		return err
	}
	return c.Edit("✅ Bekor qilindi.")
}

func (h *AdminHandler) askMonth(c tele.Context) error {
	markup := &tele.ReplyMarkup{}
	var rows []tele.Row
	for i := 0; i < len(monthNames); i += 3 {
		var row tele.Row
		for _, m := range monthNames[i : i+3] {
			row = append(row, markup.Data(m, BtnPickMonth.Unique, m))
		}
		rows = append(rows, row)
	}
	rows = append(rows, markup.Row(markup.Data("O'tkazib yuborish", BtnPickMonth.Unique, noMonth)))
	markup.Inline(rows...)
	return c.Edit("Oy belgisini tanlang:", markup)
}

func (h *AdminHandler) askClearConfirm(c tele.Context, target model.Population, prompt string) error {
	markup := &tele.ReplyMarkup{}
	markup.Inline(markup.Row(
		markup.Data("🗑 Ha, o'chirilsin", BtnClearConfirm.Unique, string(target)),
		markup.Data(BtnClearCancel.Text, BtnClearCancel.Unique),
	))
	return c.Reply(prompt, markup)
}
