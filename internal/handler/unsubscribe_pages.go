package handler

import "html"

// Minimal standalone pages for the unsubscribe flow. These render outside
// the main site, so they carry their own styling.

const pageShellTop = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>My Horse Farm</title>
<style>
body { font-family: Georgia, serif; background: #f7f5f0; color: #2d2a26; margin: 0; }
.card { max-width: 480px; margin: 80px auto; background: #fff; border-radius: 8px; padding: 40px; box-shadow: 0 2px 8px rgba(0,0,0,.08); text-align: center; }
h1 { font-size: 22px; margin: 0 0 16px; }
p { line-height: 1.5; color: #5a564f; }
button { background: #3a5a40; color: #fff; border: 0; border-radius: 6px; padding: 12px 28px; font-size: 16px; cursor: pointer; }
</style>
</head>
<body>
<div class="card">
`

const pageShellBottom = `
</div>
</body>
</html>`

const invalidLinkHTML = pageShellTop + `<h1>Invalid unsubscribe link</h1>
<p>This link is invalid or has expired. If you would like to stop receiving email from us, reply to any of our messages and we will take care of it.</p>` + pageShellBottom

const unsubscribedHTML = pageShellTop + `<h1>You're unsubscribed</h1>
<p>You will no longer receive marketing email from My Horse Farm. You will still receive quotes and booking confirmations you request.</p>` + pageShellBottom

const unsubscribeErrorHTML = pageShellTop + `<h1>Something went wrong</h1>
<p>We couldn't process your request. Please try again in a few minutes, or reply to any of our emails and we will unsubscribe you manually.</p>` + pageShellBottom

// confirmPageHTML renders the confirmation form. The POST is what actually
// opts the address out.
func confirmPageHTML(email, sig string) string {
	escapedEmail := html.EscapeString(email)
	escapedSig := html.EscapeString(sig)
	return pageShellTop + `<h1>Unsubscribe from our emails?</h1>
<p>Click below to stop receiving marketing email at <strong>` + escapedEmail + `</strong>.</p>
<form method="POST" action="/api/unsubscribe">
<input type="hidden" name="email" value="` + escapedEmail + `">
<input type="hidden" name="sig" value="` + escapedSig + `">
<button type="submit">Unsubscribe</button>
</form>` + pageShellBottom
}
