// Package payment sells coin packages through Stripe Checkout and credits
// them from the webhook.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/checkout/session"
	"gorm.io/gorm"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/database"
	"github.com/tanakadamon1/castchat-sub000/internal/events"
	"github.com/tanakadamon1/castchat-sub000/internal/httpx"
	"github.com/tanakadamon1/castchat-sub000/internal/logs"
	"github.com/tanakadamon1/castchat-sub000/internal/notification"
	"github.com/tanakadamon1/castchat-sub000/internal/permission"
	"github.com/tanakadamon1/castchat-sub000/internal/ratelimit"
	"github.com/tanakadamon1/castchat-sub000/internal/user"
)

const eventTTL = 24 * time.Hour

var (
	newCheckoutSession = session.New
	notify             = notification.Notify

	webhookSecret string
	domain        string
)

// Configure sets the Stripe keys and the frontend origin used for redirects.
func Configure(secretKey, whSecret, domainURL string) {
	stripe.Key = secretKey
	webhookSecret = whSecret
	domain = domainURL
}

func Enabled() bool {
	return stripe.Key != ""
}

// CreateCheckout opens a Checkout session for packageID and returns its URL.
func CreateCheckout(ctx context.Context, actor permission.Actor, packageID string) (string, error) {
	if !actor.Can(permission.PaymentPurchase) {
		return "", apperr.Unauthorized("please sign in")
	}
	pkg, ok := FindPackage(packageID)
	if !ok {
		return "", apperr.Validation("unknown coin package")
	}
	if !Enabled() {
		return "", apperr.New(apperr.CodePayment, "payments are not available")
	}

	u, err := user.GetByID(ctx, actor.UserID)
	if err != nil {
		return "", err
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(domain + "/coins?purchase=success&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(domain + "/coins?purchase=cancel"),
		ClientReferenceID: stripe.String(u.ID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyJPY)),
					UnitAmount: stripe.Int64(pkg.PriceJPY),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(pkg.Label),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			"user_id":    u.ID,
			"package_id": pkg.ID,
			"coins":      strconv.Itoa(pkg.Coins),
		},
	}
	if u.Email != "" {
		params.CustomerEmail = stripe.String(u.Email)
	}
	params.Context = ctx

	s, err := newCheckoutSession(params)
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodePayment, "could not start checkout")
	}

	logs.LogJSON("INFO", "Checkout session created", map[string]interface{}{
		"userID":    u.ID,
		"packageID": pkg.ID,
		"sessionID": s.ID,
	})
	return s.URL, nil
}

// HandleEvent processes a verified Stripe event. Events other than a paid
// checkout.session.completed are acknowledged and ignored. A returned
// error makes Stripe retry.
func HandleEvent(ctx context.Context, event stripe.Event) error {
	if event.Type != "checkout.session.completed" {
		logs.LogJSON("DEBUG", "Ignoring Stripe event", map[string]interface{}{"type": event.Type})
		return nil
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return apperr.Wrap(err, apperr.CodeValidation, "malformed checkout session")
	}
	if s.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		logs.LogJSON("INFO", "Checkout completed without payment", map[string]interface{}{"sessionID": s.ID})
		return nil
	}

	first, err := ratelimit.PutNX(ctx, "stripe:"+event.ID, eventTTL)
	if err != nil {
		logs.LogJSON("WARN", "Idempotency store unavailable", map[string]interface{}{"error": err.Error()})
	} else if !first {
		return nil
	}

	if err := credit(ctx, &s); err != nil {
		_ = ratelimit.Forget(ctx, "stripe:"+event.ID)
		return err
	}
	return nil
}

func credit(ctx context.Context, s *stripe.CheckoutSession) error {
	userID := s.Metadata["user_id"]
	pkg, ok := FindPackage(s.Metadata["package_id"])
	if userID == "" || !ok {
		logs.LogJSON("ERROR", "Checkout session metadata is incomplete", map[string]interface{}{"sessionID": s.ID})
		return nil
	}
	if coins, err := strconv.Atoi(s.Metadata["coins"]); err == nil && coins != pkg.Coins {
		logs.LogJSON("WARN", "Coin count differs from catalog", map[string]interface{}{
			"sessionID": s.ID,
			"metadata":  coins,
			"catalog":   pkg.Coins,
		})
	}

	sessionID := s.ID
	tx := Transaction{
		ID:              uuid.New().String(),
		CreatedAt:       time.Now(),
		UserID:          userID,
		Amount:          pkg.Coins,
		Kind:            KindPurchase,
		PackageID:       pkg.ID,
		StripeSessionID: &sessionID,
	}

	err := database.DB.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		if err := db.Create(&tx).Error; err != nil {
			return err
		}
		res := db.Model(&user.User{}).Where("id = ?", userID).
			UpdateColumn("coins", gorm.Expr("coins + ?", pkg.Coins))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("user")
		}
		return nil
	})
	if apperr.Is(err, apperr.CodeAlreadyExists) {
		logs.LogJSON("INFO", "Checkout session already credited", map[string]interface{}{"sessionID": s.ID})
		return nil
	}
	if err != nil {
		return err
	}

	logs.LogJSON("INFO", "Coins credited", map[string]interface{}{
		"userID":    userID,
		"coins":     pkg.Coins,
		"sessionID": s.ID,
	})

	notify(ctx, userID, notification.TypePaymentCompleted, "コインを購入しました",
		fmt.Sprintf("%dコインがチャージされました。", pkg.Coins),
		map[string]interface{}{"package_id": pkg.ID, "coins": pkg.Coins})
	events.Publish(ctx, events.Event{
		Type:     events.PaymentCompleted,
		UserIDs:  []string{userID},
		EntityID: tx.ID,
		Data:     map[string]interface{}{"coins": pkg.Coins, "package_id": pkg.ID},
	})
	return nil
}

func Balance(ctx context.Context, actor permission.Actor) (int, error) {
	if !actor.Can(permission.PaymentPurchase) {
		return 0, apperr.Unauthorized("please sign in")
	}
	u, err := user.GetByID(ctx, actor.UserID)
	if err != nil {
		return 0, err
	}
	return u.Coins, nil
}

func Transactions(ctx context.Context, actor permission.Actor, page httpx.Page) ([]Transaction, int64, error) {
	if !actor.Can(permission.PaymentPurchase) {
		return nil, 0, apperr.Unauthorized("please sign in")
	}

	q := database.DB.WithContext(ctx).Model(&Transaction{}).Where("user_id = ?", actor.UserID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	list := []Transaction{}
	if err := q.Order("created_at DESC").Limit(page.Limit).Offset(page.Offset).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}
