package email

import (
	"fmt"
	"html"
	"strings"

	"github.com/myhorsefarm/farmops/internal/domain"
)

// Template is a rendered email ready to send.
type Template struct {
	Subject string
	HTML    string
}

// emailDoc wraps body HTML in the shared document shell with the footer and
// unsubscribe link.
func emailDoc(bodyHTML, unsubscribeURL string) string {
	return `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width,initial-scale=1.0"></head>
<body style="margin:0;padding:0;background-color:#f4f4f4;">
<table role="presentation" width="100%" cellpadding="0" cellspacing="0" style="background-color:#f4f4f4;">
<tr><td align="center" style="padding:20px 0;">
` + bodyHTML + `
<div style="max-width:600px;margin:0 auto;text-align:center;padding:20px;font-size:12px;color:#999;">
<p style="margin:5px 0;">My Horse Farm &middot; Royal Palm Beach, FL 33411 &middot; (561) 576-7667</p>
<p style="margin:5px 0;"><a href="` + html.EscapeString(unsubscribeURL) + `" style="color:#999;">Unsubscribe</a> | <a href="https://www.myhorsefarm.com/privacy-policy" style="color:#999;">Privacy Policy</a></p>
</div>
</td></tr></table>
</body></html>`
}

func header(title, subtitle string) string {
	sub := ""
	if subtitle != "" {
		sub = `<p style="color:#d4a843;font-size:16px;margin:8px 0 0;">` + subtitle + `</p>`
	}
	return `<div style="text-align:center;padding:25px;background-color:#2d5016;">
<img src="https://www.myhorsefarm.com/logo.png" alt="My Horse Farm" style="width:80px;margin-bottom:10px;" />
<h1 style="color:#ffffff;font-size:22px;margin:0;">` + title + `</h1>
` + sub + `
</div>`
}

func signoff() string {
	return `<p style="font-size:16px;line-height:1.6;">Talk soon,<br/><strong>Jose Gomez</strong><br/>Owner, My Horse Farm<br/><a href="tel:+15615767667" style="color:#2d5016;">(561) 576-7667</a></p>`
}

func wrap(headerHTML, inner, unsubscribeURL string) string {
	return emailDoc(`<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto;color:#333;background:#fff;">
`+headerHTML+`
<div style="padding:30px 20px;">
`+inner+`
</div></div>`, unsubscribeURL)
}

func greeting(firstname string) string {
	name := firstname
	if name == "" {
		name = "there"
	}
	return `<p style="font-size:16px;line-height:1.6;">Hi ` + html.EscapeString(name) + `,</p>`
}

func para(text string) string {
	return `<p style="font-size:16px;line-height:1.6;">` + text + `</p>`
}

func ctaButton(href, label string) string {
	return `<div style="text-align:center;margin:30px 0;">
<a href="` + html.EscapeString(href) + `" style="display:inline-block;background-color:#d4a843;color:#ffffff;padding:14px 32px;text-decoration:none;border-radius:5px;font-weight:bold;font-size:16px;">` + label + `</a>
</div>`
}

func callButton() string {
	return ctaButton("tel:+15615767667", "Call (561) 576-7667")
}

func listItems(items []string) string {
	var b strings.Builder
	for _, item := range items {
		b.WriteString("<li>" + html.EscapeString(item) + "</li>")
	}
	return b.String()
}

var serviceOverview = `<ul style="font-size:15px;line-height:1.8;color:#555;">
<li><strong>Manure Removal</strong> &ndash; Leak-proof bins, scheduled pickups, weight tickets on every load</li>
<li><strong>Junk Removal</strong> &ndash; Old fencing, debris, equipment, starting at $75/ton</li>
<li><strong>Shavings Delivery</strong> &ndash; Bedding shavings delivered by the yard</li>
<li><strong>Arena Dragging</strong> &ndash; Grooming and leveling for safe footing</li>
<li><strong>Weekly Can Service</strong> &ndash; Muck can pickup and swap on your schedule</li>
<li><strong>Paddock Cleanup</strong> &ndash; One-time full cleanouts with an on-site estimate</li>
</ul>`

// WelcomeEmail1 introduces the business to a brand new contact.
func WelcomeEmail1(firstname, unsubscribeURL string) Template {
	inner := greeting(firstname) +
		para(`Thank you for reaching out to My Horse Farm! I&#39;m Jose Gomez, and my team and I have been serving Palm Beach County&#39;s equestrian community for over a decade.`) +
		para(`Whether you need regular manure removal, a one-time property cleanout, or help getting your farm season-ready, we&#39;ve got you covered:`) +
		serviceOverview +
		para(`We serve Wellington, Loxahatchee, Royal Palm Beach, West Palm Beach, and surrounding areas.`) +
		ctaButton("https://www.myhorsefarm.com/#calendar", "Book a Free Estimate") +
		para(`Or call us directly at <a href="tel:+15615767667" style="color:#2d5016;font-weight:bold;">(561) 576-7667</a>. We typically respond within one business hour.`) +
		signoff()
	return Template{
		Subject: "Welcome to My Horse Farm – Here’s What We Can Do for You",
		HTML:    wrap(header("Welcome to My Horse Farm", ""), inner, unsubscribeURL),
	}
}

// WelcomeEmail2 shares client testimonials a few days in.
func WelcomeEmail2(firstname, unsubscribeURL string) Template {
	inner := greeting(firstname) +
		para(`A few days ago we introduced ourselves. Today, we&#39;d like to share what some of our long-time clients have to say:`) +
		`<div style="background-color:#f9f7f2;border-left:4px solid #d4a843;padding:20px;margin:20px 0;border-radius:4px;">
<p style="font-style:italic;font-size:15px;line-height:1.6;margin:0;">&ldquo;We&#39;ve worked with My Horse Farm for over a year now and they are hands down the most dependable manure removal company in the area. They show up on schedule and the communication is excellent.&rdquo;</p>
<p style="font-size:14px;color:#888;margin:10px 0 0 0;"><strong>&mdash; Sarah M., Wellington, FL</strong></p>
</div>
<div style="background-color:#f9f7f2;border-left:4px solid #d4a843;padding:20px;margin:20px 0;border-radius:4px;">
<p style="font-style:italic;font-size:15px;line-height:1.6;margin:0;">&ldquo;Managing 40+ stalls means manure piles build up fast. These guys handle our loads without issues and always provide weight tickets. Professional, organized, and priced fairly.&rdquo;</p>
<p style="font-size:14px;color:#888;margin:10px 0 0 0;"><strong>&mdash; Carlos R., Loxahatchee, FL</strong></p>
</div>` +
		`<h2 style="color:#2d5016;font-size:18px;margin-top:30px;">Quick Tip: Manure Storage in Florida</h2>` +
		para(`With Florida&#39;s heat and humidity, open manure piles attract flies within hours. Use covered, leak-proof bins and keep them 100+ feet from canals. Wellington ordinances require it, and it&#39;s good practice everywhere in PBC.`) +
		ctaButton("https://www.myhorsefarm.com/#calendar", "Get a Free Quote") +
		signoff()
	return Template{
		Subject: "What Wellington Farm Owners Say About My Horse Farm",
		HTML:    wrap(header("What Our Clients Say", ""), inner, unsubscribeURL),
	}
}

// WelcomeEmail3 closes the welcome series with a booking push.
func WelcomeEmail3(firstname, unsubscribeURL string) Template {
	inner := greeting(firstname) +
		para(`Over the past week, we&#39;ve shared what My Horse Farm offers and what our clients think of our work. Now we&#39;d love to help <em>you</em>.`) +
		para(`Here&#39;s how easy it is to get started:`) +
		`<ol style="font-size:15px;line-height:2.0;color:#555;">
<li><strong>Tell us what you need</strong> &ndash; call (561) 576-7667 or book online</li>
<li><strong>Get a free estimate</strong> &ndash; transparent pricing within one business hour, no hidden fees</li>
<li><strong>We handle the rest</strong> &ndash; bins delivered, pickups scheduled, one provider for everything</li>
</ol>` +
		`<p style="font-size:16px;line-height:1.6;color:#555;"><strong>Why farm owners choose us:</strong></p>
<ul style="font-size:15px;line-height:1.8;color:#555;">
<li>Fully licensed &amp; insured in Florida</li>
<li>Same-day and next-day service available</li>
<li>Weight tickets on every load</li>
<li>We&#39;re horse owners too</li>
</ul>` +
		ctaButton("https://www.myhorsefarm.com/#calendar", "Book Your Free Estimate Now") +
		signoff()
	return Template{
		Subject: "Ready to Get Started? Book Your Free Estimate Today",
		HTML:    wrap(header("Ready to Get Started?", ""), inner, unsubscribeURL),
	}
}

// ReviewRequestEmail asks for a Google review after a completed job.
func ReviewRequestEmail(firstname, unsubscribeURL string) Template {
	inner := greeting(firstname) +
		para(`Thank you for trusting My Horse Farm with your recent service. We hope everything met your expectations.`) +
		para(`If you have a moment, we&#39;d really appreciate a quick Google review. It takes less than a minute and helps other horse farm owners in the area find reliable service.`) +
		ctaButton("https://g.page/r/CUtJdTADtIsyEBM/review", "Leave a Google Review") +
		para(`Thank you again for your business. If you ever need anything, just give us a call.`) +
		signoff()
	return Template{
		Subject: "How did we do? Leave us a quick review",
		HTML:    wrap(header("Thank You for Choosing Us!", ""), inner, unsubscribeURL),
	}
}

// FirstPaymentWelcomeEmail is the receipt-plus-introduction sent after a
// customer's first ever payment.
func FirstPaymentWelcomeEmail(firstname, amount string, services []string, unsubscribeURL string) Template {
	serviceList := listItems(services)
	if serviceList == "" {
		serviceList = "<li>Farm services</li>"
	}
	amt := html.EscapeString(amount)

	inner := greeting(firstname) +
		para(`Thank you for choosing My Horse Farm! We&#39;ve received your payment of <strong>$`+amt+`</strong>.`) +
		`<div style="background-color:#f9f7f2;padding:20px;border-radius:8px;margin:20px 0;">
<p style="font-size:14px;color:#666;margin:0 0 10px;"><strong>Services:</strong></p>
<ul style="font-size:15px;line-height:1.8;color:#555;margin:0;padding-left:20px;">` + serviceList + `</ul>
<p style="font-size:16px;margin:15px 0 0;"><strong>Total: $` + amt + `</strong></p>
</div>` +
		para(`I&#39;m Jose Gomez, and my team and I have been serving Palm Beach County&#39;s equestrian community for over a decade. Now that you&#39;re part of the family, here&#39;s a quick look at everything we can help with:`) +
		serviceOverview +
		callButton() +
		signoff()
	return Template{
		Subject: "Welcome to My Horse Farm – Payment of $" + amount + " Received",
		HTML:    wrap(header("Welcome to My Horse Farm", "Thank you for your first payment!"), inner, unsubscribeURL),
	}
}

// LoyaltyMilestoneEmail thanks a repeat client at 6 or 12 months.
func LoyaltyMilestoneEmail(firstname string, monthCount int, unsubscribeURL string) Template {
	monthLabel := "a full year"
	if monthCount == 6 {
		monthLabel = "six months"
	}

	inner := greeting(firstname) +
		para(fmt.Sprintf(`It&#39;s been %s since you first trusted us with your farm, and I wanted to take a moment to personally say <strong>thank you</strong>.`, monthLabel)) +
		para(`Loyal clients like you are the reason we do what we do. We know you have options, and the fact that you keep choosing My Horse Farm means the world to our team.`) +
		`<div style="background-color:#f9f7f2;border-left:4px solid #d4a843;padding:20px;margin:20px 0;border-radius:4px;">
<p style="font-size:16px;line-height:1.6;margin:0;"><strong>As a valued client, you always get:</strong></p>
<ul style="font-size:15px;line-height:1.8;color:#555;margin:10px 0 0;">
<li>Priority scheduling</li>
<li>A direct line to me personally for any questions</li>
<li>First access to new services and seasonal availability</li>
</ul>
</div>` +
		para(`If there&#39;s anything we can do better, I&#39;d love to hear it. Just reply to this email or call me directly.`) +
		signoff()
	return Template{
		Subject: fmt.Sprintf("It’s Been %d Months – Thank You for Trusting My Horse Farm", monthCount),
		HTML:    wrap(header("Thank You!", "Celebrating "+monthLabel+" together"), inner, unsubscribeURL),
	}
}

// ReferralRequestEmail asks an established client to pass along the number.
func ReferralRequestEmail(firstname, unsubscribeURL string) Template {
	inner := greeting(firstname) +
		para(`You&#39;ve been a great client and I really appreciate your trust. I have a small favor to ask.`) +
		para(`If you know another farm owner in the area who could use reliable manure removal, junk hauling, or any of our services, would you mind passing along my number?`) +
		`<div style="background-color:#f9f7f2;padding:25px;border-radius:8px;margin:20px 0;text-align:center;">
<p style="font-size:18px;font-weight:bold;color:#2d5016;margin:0 0 5px;">Jose Gomez &ndash; My Horse Farm</p>
<p style="font-size:20px;margin:0;"><a href="tel:+15615767667" style="color:#2d5016;text-decoration:none;font-weight:bold;">(561) 576-7667</a></p>
<p style="font-size:14px;color:#888;margin:10px 0 0;">Or share: <a href="https://www.myhorsefarm.com" style="color:#2d5016;">myhorsefarm.com</a></p>
</div>` +
		para(`Most of our business comes from word of mouth, and a recommendation from someone like you means more than any ad we could run.`) +
		signoff()
	return Template{
		Subject: "Know Another Farm Owner Who Could Use a Hand?",
		HTML:    wrap(header("A Quick Favor", ""), inner, unsubscribeURL),
	}
}

// ServiceUpsellEmail suggests services the client has not used yet.
func ServiceUpsellEmail(firstname string, suggestedServices []string, unsubscribeURL string) Template {
	inner := greeting(firstname) +
		para(`Thanks for being a loyal My Horse Farm client. I wanted to make sure you knew about a few other services we offer that might be useful for your property:`) +
		`<div style="background-color:#f9f7f2;padding:20px;border-radius:8px;margin:20px 0;">
<ul style="font-size:15px;line-height:2.0;color:#555;margin:0;padding-left:20px;">` + listItems(suggestedServices) + `</ul>
</div>` +
		para(`Since we already know your property and your needs, bundling services is easy. One call, one provider, and everything gets handled together.`) +
		callButton() +
		signoff()
	return Template{
		Subject: "Did You Know We Also Offer These Services?",
		HTML:    wrap(header("More Ways We Can Help", ""), inner, unsubscribeURL),
	}
}

// PreSeasonEmail is the yearly push to local contacts before show season.
func PreSeasonEmail(firstname, unsubscribeURL string) Template {
	inner := greeting(firstname) +
		para(`WEF is around the corner. If your farm still needs work before horses arrive, now is the time to act. Haulers, contractors, and service providers book up fast once November hits.`) +
		para(`Instead of coordinating three or four different vendors, let us handle everything in one shot:`) +
		serviceOverview +
		`<div style="background-color:#2d5016;color:#ffffff;padding:25px;border-radius:8px;margin:25px 0;text-align:center;">
<p style="font-size:18px;font-weight:bold;margin:0 0 10px;">Season-Ready Bundle</p>
<p style="font-size:15px;margin:0 0 15px;color:#ccc;">Combine multiple services into one coordinated project.</p>
<a href="https://www.myhorsefarm.com/season-ready" style="display:inline-block;background-color:#d4a843;color:#ffffff;padding:14px 32px;text-decoration:none;border-radius:5px;font-weight:bold;font-size:16px;">See the Full Bundle</a>
</div>` +
		callButton() +
		signoff()
	return Template{
		Subject: "Get Your Farm Season-Ready Before WEF – One Call Handles It All",
		HTML:    wrap(header("Get Your Farm Season-Ready", "One Call Handles It All"), inner, unsubscribeURL),
	}
}

// QuoteConfirmationEmail delivers an instant quote with its price breakdown
// and an accept link.
func QuoteConfirmationEmail(firstname, quoteNumber, serviceName string, breakdown domain.PricingBreakdown, acceptURL, unsubscribeURL string) Template {
	var adjustmentRows strings.Builder
	for _, a := range breakdown.Adjustments {
		sign := ""
		if a.Amount >= 0 {
			sign = "+"
		}
		adjustmentRows.WriteString(fmt.Sprintf(
			`<tr><td style="padding:6px 0;font-size:14px;color:#666;">%s</td><td style="padding:6px 0;font-size:14px;color:#666;text-align:right;">%s$%.2f</td></tr>`,
			html.EscapeString(a.Label), sign, abs(a.Amount)))
	}

	inner := greeting(firstname) +
		para(`Thanks for requesting a quote from My Horse Farm! Here are the details:`) +
		fmt.Sprintf(`<div style="background-color:#f9f7f2;padding:20px;border-radius:8px;margin:20px 0;">
<p style="font-size:12px;color:#999;margin:0 0 5px;">Quote #</p>
<p style="font-size:16px;font-weight:bold;margin:0 0 15px;color:#2d5016;">%s</p>
<table style="width:100%%;border-collapse:collapse;">
<tr><td style="padding:8px 0;border-bottom:2px solid #d4a843;font-weight:bold;font-size:14px;color:#666;">Service</td><td style="padding:8px 0;border-bottom:2px solid #d4a843;font-weight:bold;font-size:14px;color:#666;text-align:right;">Amount</td></tr>
<tr><td style="padding:8px 0;font-size:15px;">%s</td><td style="padding:8px 0;font-size:15px;text-align:right;">$%.2f</td></tr>
%s
<tr><td style="padding:12px 0;border-top:2px solid #2d5016;font-size:16px;font-weight:bold;">Total</td><td style="padding:12px 0;border-top:2px solid #2d5016;font-size:16px;font-weight:bold;text-align:right;">$%.2f</td></tr>
</table>
</div>`,
			html.EscapeString(quoteNumber), html.EscapeString(serviceName),
			breakdown.Base, adjustmentRows.String(), breakdown.Total) +
		`<p style="font-size:14px;color:#888;">This quote is valid for 30 days.</p>` +
		ctaButton(acceptURL, "Accept &amp; Schedule") +
		para(`Questions? Call us at <a href="tel:+15615767667" style="color:#2d5016;font-weight:bold;">(561) 576-7667</a>.`) +
		signoff()
	return Template{
		Subject: fmt.Sprintf("Your Quote %s – $%.2f", quoteNumber, breakdown.Total),
		HTML:    wrap(header("Your Quote Is Ready", ""), inner, unsubscribeURL),
	}
}

// BookingConfirmationEmail confirms a scheduled service date and window.
func BookingConfirmationEmail(firstname, bookingNumber, serviceName, date string, timeSlot domain.TimeSlot, unsubscribeURL string) Template {
	slotLabel := "Afternoon (12 PM – 5 PM)"
	if timeSlot == domain.SlotMorning {
		slotLabel = "Morning (8 AM – 12 PM)"
	}

	inner := greeting(firstname) +
		para(`Your service has been scheduled. Here are the details:`) +
		fmt.Sprintf(`<div style="background-color:#f9f7f2;padding:20px;border-radius:8px;margin:20px 0;">
<table style="width:100%%;border-collapse:collapse;">
<tr><td style="padding:10px 0;font-size:14px;color:#666;width:120px;">Booking #</td><td style="padding:10px 0;font-size:15px;font-weight:bold;color:#2d5016;">%s</td></tr>
<tr><td style="padding:10px 0;font-size:14px;color:#666;">Service</td><td style="padding:10px 0;font-size:15px;">%s</td></tr>
<tr><td style="padding:10px 0;font-size:14px;color:#666;">Date</td><td style="padding:10px 0;font-size:15px;font-weight:bold;">%s</td></tr>
<tr><td style="padding:10px 0;font-size:14px;color:#666;">Time</td><td style="padding:10px 0;font-size:15px;">%s</td></tr>
</table>
</div>`,
			html.EscapeString(bookingNumber), html.EscapeString(serviceName),
			html.EscapeString(date), slotLabel) +
		para(`We&#39;ll be at your property during the scheduled window. If anything changes, give us a call and we&#39;ll work it out.`) +
		callButton() +
		signoff()
	return Template{
		Subject: "Booking Confirmed – " + bookingNumber,
		HTML:    wrap(header("Booking Confirmed!", "You’re all set"), inner, unsubscribeURL),
	}
}

// SiteVisitRequestEmail acknowledges a quote request that needs an on-site
// estimate before pricing.
func SiteVisitRequestEmail(firstname, serviceName, quoteNumber, unsubscribeURL string) Template {
	inner := greeting(firstname) +
		para(`Thanks for your interest in <strong>`+html.EscapeString(serviceName)+`</strong>. This service requires a quick site visit so we can give you an accurate quote.`) +
		`<div style="background-color:#f9f7f2;padding:20px;border-radius:8px;margin:20px 0;">
<p style="font-size:14px;color:#666;margin:0 0 5px;">Quote Reference</p>
<p style="font-size:16px;font-weight:bold;margin:0;color:#2d5016;">` + html.EscapeString(quoteNumber) + `</p>
</div>` +
		para(`Here&#39;s what happens next:`) +
		`<ol style="font-size:15px;line-height:2.0;color:#555;">
<li>We&#39;ll call you within one business day to schedule a site visit</li>
<li>We&#39;ll visit your property and assess the job</li>
<li>You&#39;ll receive a detailed quote within 24 hours of the visit</li>
</ol>` +
		para(`Want to speed things up? Call us directly at <a href="tel:+15615767667" style="color:#2d5016;font-weight:bold;">(561) 576-7667</a>.`) +
		signoff()
	return Template{
		Subject: "Quote Request Received – " + quoteNumber,
		HTML:    wrap(header("We’ll Be in Touch", ""), inner, unsubscribeURL),
	}
}

// ChatHandoffEmail is the internal notification sent when the assistant hands
// a conversation off to a human.
func ChatHandoffEmail(customerName, customerEmail, customerPhone, summary, chatSessionID string) Template {
	orNotProvided := func(s string) string {
		if s == "" {
			return "Not provided"
		}
		return html.EscapeString(s)
	}
	displayName := customerName
	if displayName == "" {
		displayName = "Unknown"
	}

	inner := fmt.Sprintf(`<div style="background-color:#f9f7f2;padding:20px;border-radius:8px;margin:0 0 20px;">
<table style="width:100%%;border-collapse:collapse;">
<tr><td style="padding:8px 0;font-size:14px;color:#666;width:100px;">Name</td><td style="padding:8px 0;font-size:15px;font-weight:bold;">%s</td></tr>
<tr><td style="padding:8px 0;font-size:14px;color:#666;">Email</td><td style="padding:8px 0;font-size:15px;">%s</td></tr>
<tr><td style="padding:8px 0;font-size:14px;color:#666;">Phone</td><td style="padding:8px 0;font-size:15px;">%s</td></tr>
<tr><td style="padding:8px 0;font-size:14px;color:#666;">Session</td><td style="padding:8px 0;font-size:13px;color:#999;">%s</td></tr>
</table>
</div>
<h3 style="color:#2d5016;margin:20px 0 10px;">Conversation Summary</h3>
<div style="background-color:#fff;border:1px solid #e0e0e0;padding:15px;border-radius:8px;">
<p style="font-size:14px;line-height:1.6;color:#555;margin:0;white-space:pre-wrap;">%s</p>
</div>`,
		orNotProvided(customerName), orNotProvided(customerEmail),
		orNotProvided(customerPhone), html.EscapeString(chatSessionID),
		html.EscapeString(summary))

	return Template{
		Subject: "[Chat Handoff] " + displayName + " needs help",
		HTML:    wrap(header("Chat Handoff", "A customer needs personal attention"), inner, "#"),
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
