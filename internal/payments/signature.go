package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader carries the webhook digest.
const SignatureHeader = "X-Razorpay-Signature"

// Sign returns lowercase hex of HMAC-SHA256 over message.
func Sign(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// PaymentMessage is the signed message of a checkout confirmation.
func PaymentMessage(orderID, paymentID string) []byte {
	return []byte(orderID + "|" + paymentID)
}

// VerifyPayment checks a checkout confirmation signature.
func VerifyPayment(secret, orderID, paymentID, signature string) bool {
	return equalDigest(Sign(secret, PaymentMessage(orderID, paymentID)), signature)
}

// VerifyWebhook checks a webhook signature over the raw body. body must be the
// bytes as received; re-encoding parsed JSON changes the digest.
func VerifyWebhook(secret string, body []byte, signature string) bool {
	return equalDigest(Sign(secret, body), signature)
}

// equalDigest compares in constant time for equal lengths.
func equalDigest(expected, provided string) bool {
	return hmac.Equal([]byte(expected), []byte(provided))
}
