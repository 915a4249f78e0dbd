package rewards

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"wannagonna/internal/contextutils"
	"wannagonna/internal/models"
	"wannagonna/internal/response"
	"wannagonna/internal/services"
	"wannagonna/internal/validation"
)

const (
	maxBodyBytes  = 1 << 20
	maxImageBytes = 5 << 20
)

// RewardsController exposes the rewards engine over HTTP.
type RewardsController struct {
	serviceCollection *services.ServiceCollection
	logger            *zap.Logger
	responseBuilder   *response.Builder
}

// NewRewardsController creates a rewards controller
func NewRewardsController(
	serviceCollection *services.ServiceCollection,
	logger *zap.Logger,
	responseBuilder *response.Builder,
) *RewardsController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RewardsController{
		serviceCollection: serviceCollection,
		logger:            logger,
		responseBuilder:   responseBuilder,
	}
}

// Routes mounts every rewards endpoint on r.
func (c *RewardsController) Routes(r chi.Router) {
	r.Route("/events", func(r chi.Router) {
		r.Post("/profile-completed", c.ProfileCompleted)
		r.Post("/activity-validated", c.ActivityValidated)
		r.Post("/referral-signup", c.ReferralSignup)
	})

	r.Route("/members/{memberId}", func(r chi.Router) {
		r.Get("/badges", c.ListEarned)
		r.Get("/badges/{badgeId}", c.HasBadge)
		r.Post("/badges/{badgeId}", c.GrantBadge)
		r.Delete("/badges/{badgeId}", c.RevokeBadge)
		r.Post("/xp", c.AwardXP)
		r.Get("/xp-history", c.XPHistory)
	})

	r.Route("/catalog", func(r chi.Router) {
		r.Get("/categories", c.ListCategories)
		r.Get("/categories/{categoryId}/badges", c.ListBadges)
		r.Put("/categories/{categoryId}/badges/{badgeId}/image", c.UploadImage)
		r.Get("/badges/{badgeId}", c.GetBadge)
		r.Post("/invalidate", c.InvalidateCatalog)
	})

	r.Post("/badges/images/resolve", c.ResolveImages)
}

// ===============================
// DOMAIN EVENTS
// ===============================

// ProfileCompleted handles POST /api/v1/events/profile-completed
func (c *RewardsController) ProfileCompleted(w http.ResponseWriter, r *http.Request) {
	var req models.ProfileCompletedRequest
	if !c.decodeAndValidate(w, r, &req) {
		return
	}

	granted, err := c.serviceCollection.Rules.ProfileCompleted(r.Context(), req.MemberID)
	if err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}
	c.responseBuilder.WriteSuccess(w, r, models.GrantedBadgesResponse{Granted: nonNil(granted)})
}

// ActivityValidated handles POST /api/v1/events/activity-validated
func (c *RewardsController) ActivityValidated(w http.ResponseWriter, r *http.Request) {
	var req models.ActivityValidatedRequest
	if !c.decodeAndValidate(w, r, &req) {
		return
	}

	granted, err := c.serviceCollection.Rules.ActivityValidated(r.Context(), req.MemberID, req.Activity)
	if err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}
	c.responseBuilder.WriteSuccess(w, r, models.GrantedBadgesResponse{Granted: nonNil(granted)})
}

// ReferralSignup handles POST /api/v1/events/referral-signup. Signup must
// never fail because of a referral, so every path answers 200.
func (c *RewardsController) ReferralSignup(w http.ResponseWriter, r *http.Request) {
	var req models.ReferralSignupRequest
	if err := decodeJSON(r, &req); err != nil {
		c.requestLogger(r).Info("Ignoring malformed referral signup", zap.Error(err))
		c.responseBuilder.WriteSuccess(w, r, models.ReferralSignupResponse{Outcome: models.ReferralOutcomeNone})
		return
	}

	outcome := c.serviceCollection.Rules.ReferralSignup(r.Context(), req.Code)
	c.responseBuilder.WriteSuccess(w, r, models.ReferralSignupResponse{Outcome: outcome})
}

// ===============================
// MEMBER BADGES AND XP
// ===============================

// ListEarned handles GET /api/v1/members/{memberId}/badges
func (c *RewardsController) ListEarned(w http.ResponseWriter, r *http.Request) {
	earned, err := c.serviceCollection.Grants.ListEarned(r.Context(), chi.URLParam(r, "memberId"))
	if err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}
	if earned == nil {
		earned = []*models.EarnedBadgeWithDetails{}
	}
	c.responseBuilder.WriteSuccess(w, r, earned)
}

// HasBadge handles GET /api/v1/members/{memberId}/badges/{badgeId}
func (c *RewardsController) HasBadge(w http.ResponseWriter, r *http.Request) {
	memberID, badgeID := chi.URLParam(r, "memberId"), chi.URLParam(r, "badgeId")

	has, err := c.serviceCollection.Grants.HasBadge(r.Context(), memberID, badgeID)
	if err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}
	c.responseBuilder.WriteSuccess(w, r, models.HasBadgeResponse{
		MemberID: memberID,
		BadgeID:  badgeID,
		HasBadge: has,
	})
}

// GrantBadge handles POST /api/v1/members/{memberId}/badges/{badgeId}
func (c *RewardsController) GrantBadge(w http.ResponseWriter, r *http.Request) {
	memberID, badgeID := chi.URLParam(r, "memberId"), chi.URLParam(r, "badgeId")

	details, err := c.serviceCollection.Grants.GrantBadge(r.Context(), memberID, badgeID)
	if err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}
	resp := BadgeChangeResponse{MemberID: memberID, BadgeID: badgeID, Changed: details != nil, Badge: details}
	if details != nil {
		c.responseBuilder.WriteCreated(w, r, resp)
		return
	}
	c.responseBuilder.WriteSuccess(w, r, resp)
}

// RevokeBadge handles DELETE /api/v1/members/{memberId}/badges/{badgeId}
func (c *RewardsController) RevokeBadge(w http.ResponseWriter, r *http.Request) {
	memberID, badgeID := chi.URLParam(r, "memberId"), chi.URLParam(r, "badgeId")

	details, err := c.serviceCollection.Grants.RevokeBadge(r.Context(), memberID, badgeID)
	if err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}
	c.responseBuilder.WriteSuccess(w, r, BadgeChangeResponse{
		MemberID: memberID,
		BadgeID:  badgeID,
		Changed:  details != nil,
		Badge:    details,
	})
}

// AwardXP handles POST /api/v1/members/{memberId}/xp
func (c *RewardsController) AwardXP(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberId")

	var req models.AwardXPRequest
	if !c.decodeAndValidate(w, r, &req) {
		return
	}

	awarded, err := c.serviceCollection.Grants.AwardXP(r.Context(), memberID, &req)
	if err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}
	if !awarded {
		c.responseBuilder.WriteError(w, r, services.NewMemberMissError(memberID))
		return
	}
	c.responseBuilder.WriteSuccess(w, r, AwardXPResponse{MemberID: memberID, Awarded: true, Points: req.Points})
}

// XPHistory handles GET /api/v1/members/{memberId}/xp-history
func (c *RewardsController) XPHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := c.serviceCollection.Ledger.List(r.Context(), chi.URLParam(r, "memberId"))
	if err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*models.XPHistoryEntry{}
	}
	c.responseBuilder.WriteSuccess(w, r, entries)
}

// ===============================
// CATALOG
// ===============================

// ListCategories handles GET /api/v1/catalog/categories
func (c *RewardsController) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := c.serviceCollection.Catalog.ListCategories(r.Context())
	if err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}
	c.responseBuilder.WriteSuccess(w, r, categories)
}

// ListBadges handles GET /api/v1/catalog/categories/{categoryId}/badges
func (c *RewardsController) ListBadges(w http.ResponseWriter, r *http.Request) {
	badges, err := c.serviceCollection.Catalog.ListBadgesInCategory(r.Context(), chi.URLParam(r, "categoryId"))
	if err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}
	c.responseBuilder.WriteSuccess(w, r, badges)
}

// GetBadge handles GET /api/v1/catalog/badges/{badgeId}
func (c *RewardsController) GetBadge(w http.ResponseWriter, r *http.Request) {
	badge, err := c.serviceCollection.Catalog.FindBadgeByID(r.Context(), chi.URLParam(r, "badgeId"))
	if err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}
	c.responseBuilder.WriteSuccess(w, r, badge)
}

// InvalidateCatalog handles POST /api/v1/catalog/invalidate
func (c *RewardsController) InvalidateCatalog(w http.ResponseWriter, r *http.Request) {
	if err := c.serviceCollection.Catalog.Invalidate(r.Context()); err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ===============================
// IMAGES
// ===============================

// ResolveImages handles POST /api/v1/badges/images/resolve
func (c *RewardsController) ResolveImages(w http.ResponseWriter, r *http.Request) {
	var req models.ResolveImagesRequest
	if !c.decodeAndValidate(w, r, &req) {
		return
	}

	urls := c.serviceCollection.Images.ResolveImages(r.Context(), req.Items, req.Concurrency)
	c.responseBuilder.WriteSuccess(w, r, models.ResolveImagesResponse{URLs: urls})
}

// UploadImage handles PUT /api/v1/catalog/categories/{categoryId}/badges/{badgeId}/image.
// The body is the raw image; the extension comes from ?ext= or the
// Content-Type header.
func (c *RewardsController) UploadImage(w http.ResponseWriter, r *http.Request) {
	categoryID, badgeID := chi.URLParam(r, "categoryId"), chi.URLParam(r, "badgeId")

	ext := r.URL.Query().Get("ext")
	if ext == "" {
		ext = extFromContentType(r.Header.Get("Content-Type"))
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImageBytes))
	if err != nil {
		c.responseBuilder.WriteError(w, r, services.NewValidationError("Image body is too large or unreadable", err))
		return
	}

	url, err := c.serviceCollection.Images.Upload(r.Context(), categoryID, badgeID, ext, data)
	if err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}
	c.responseBuilder.WriteCreated(w, r, ImageUploadResponse{BadgeID: badgeID, CategoryID: categoryID, URL: url})
}

// ===============================
// HELPERS
// ===============================

func (c *RewardsController) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := decodeJSON(r, dst); err != nil {
		c.requestLogger(r).Warn("Failed to decode request body", zap.Error(err))
		c.responseBuilder.WriteError(w, r, services.NewValidationError("Invalid request body format", err))
		return false
	}
	if err := validation.ValidateStruct(dst); err != nil {
		var verrs models.ValidationErrors
		if errors.As(err, &verrs) {
			c.responseBuilder.WriteError(w, r, services.NewFieldValidationError(verrs))
			return false
		}
		c.responseBuilder.WriteError(w, r, services.NewInternalError("Request validation failed", err))
		return false
	}
	return true
}

func (c *RewardsController) requestLogger(r *http.Request) *zap.Logger {
	return contextutils.Logger(r.Context(), c.logger)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	return dec.Decode(dst)
}

func extFromContentType(ct string) string {
	mediaType, _, _ := strings.Cut(ct, ";")
	switch strings.TrimSpace(strings.ToLower(mediaType)) {
	case "image/svg+xml":
		return "svg"
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	}
	return ""
}

func nonNil(granted []models.BadgeDetails) []models.BadgeDetails {
	if granted == nil {
		return []models.BadgeDetails{}
	}
	return granted
}
