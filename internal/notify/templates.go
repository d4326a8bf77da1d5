package notify

import "fmt"

const (
	TemplateRecoveryFirst  = "recovery_first"
	TemplateRecoverySecond = "recovery_second"
	TemplateRecoveryThird  = "recovery_third"
)

// RecoverySubject returns the subject line for the given 1-based attempt.
// Timing is attempt-index-driven in the scheduler; only the wording varies.
func RecoverySubject(attempt int) string {
	switch attempt {
	case 1:
		return "You left something behind at EArtesana"
	case 2:
		return "Your handmade picks are still waiting - here's a treat"
	case 3:
		return "Last chance: your cart and discount expire soon"
	default:
		return "Your EArtesana cart is waiting"
	}
}

func RecoveryTemplate(attempt int) string {
	switch attempt {
	case 1:
		return TemplateRecoveryFirst
	case 2:
		return TemplateRecoverySecond
	default:
		return TemplateRecoveryThird
	}
}

func renderRecoveryBody(templateID string, data map[string]string) string {
	link := data["recovery_url"]
	coupon := data["coupon_code"]

	switch templateID {
	case TemplateRecoveryFirst:
		return fmt.Sprintf(`
			<h2>Still thinking it over?</h2>
			<p>Your cart is saved and ready whenever you are.</p>
			<p><a href="%s">Pick up where you left off</a></p>
			<br>
			<p>EArtesana - handmade, for keeps</p>
		`, link)
	case TemplateRecoverySecond:
		return fmt.Sprintf(`
			<h2>A little something to help you decide</h2>
			<p>Use code <strong>%s</strong> on the items in your cart.</p>
			<p><a href="%s">Return to your cart</a></p>
			<br>
			<p>EArtesana - handmade, for keeps</p>
		`, coupon, link)
	default:
		return fmt.Sprintf(`
			<h2>Your cart expires soon</h2>
			<p>Code <strong>%s</strong> is only valid a little longer.</p>
			<p><a href="%s">Complete your order</a></p>
			<br>
			<p>EArtesana - handmade, for keeps</p>
		`, coupon, link)
	}
}
