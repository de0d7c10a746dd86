package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const productPage = `<html><body>
<div class="price">$19.99</div>
<button class="buy">Add to Cart</button>
<p>This item is in stock and ships tomorrow.</p>
</body></html>`

func TestFingerprintTracker_FirstObservationIsBaseline(t *testing.T) {
	tr := NewFingerprintTracker()

	changed, msg := tr.Update("https://shop.example.com/p/1", productPage)

	assert.False(t, changed)
	assert.Equal(t, "baseline recorded", msg)
}

func TestFingerprintTracker_UnchangedContent(t *testing.T) {
	tr := NewFingerprintTracker()
	url := "https://shop.example.com/p/1"

	tr.Update(url, productPage)
	changed, msg := tr.Update(url, productPage)

	assert.False(t, changed)
	assert.Equal(t, "unchanged", msg)
}

func TestFingerprintTracker_DetectsSalientChange(t *testing.T) {
	tr := NewFingerprintTracker()
	url := "https://shop.example.com/p/1"

	tr.Update(url, productPage)
	soldOut := `<html><body>
<div class="price">$19.99</div>
<button class="buy" disabled>Sold Out</button>
<p>This item is out of stock.</p>
</body></html>`
	changed, msg := tr.Update(url, soldOut)

	assert.True(t, changed)
	assert.Contains(t, msg, "content changed")
}

func TestFingerprintTracker_IgnoresNoise(t *testing.T) {
	tr := NewFingerprintTracker()
	url := "https://shop.example.com/p/1"

	// Markup noise outside prices, buttons, and keyword neighborhoods must
	// not register as a change. The footer keeps the noise out of the
	// keyword windows.
	footer := `<footer>Questions? Our support team answers within one business day, every day of the week.</footer>`
	tr.Update(url, productPage+footer+`<!-- build 1 -->`)
	changed, _ := tr.Update(url, productPage+footer+`<!-- build 2 --><div class="ad">banner</div>`)

	assert.False(t, changed)
}

func TestFingerprintTracker_TracksURLsIndependently(t *testing.T) {
	tr := NewFingerprintTracker()

	tr.Update("https://shop.example.com/p/1", productPage)
	changed, msg := tr.Update("https://shop.example.com/p/2", productPage)

	assert.False(t, changed)
	assert.Equal(t, "baseline recorded", msg)
}
