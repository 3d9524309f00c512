package listing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ramallah-time/internal/access"
	"ramallah-time/internal/events"
	"ramallah-time/internal/filestore"
	"ramallah-time/internal/models"
	"ramallah-time/internal/subscription"
)

func adminCreate(t *testing.T, f *fixture, in CreateInput) *AuthenticatedView {
	t.Helper()
	v, err := f.svc.Create(context.Background(), testAdminSecret, in)
	require.NoError(t, err)
	return v
}

func TestAdminCreateIsActiveForAYear(t *testing.T) {
	f := newFixture(t)
	v := adminCreate(t, f, CreateInput{Name: "Cafe X", Category: "cafe", IsPremium: true})

	assert.Equal(t, subscription.StatusActive, v.SubscriptionStatus)
	assert.Equal(t, "admin", v.Access)
	assert.True(t, v.IsPremium)
	require.NotNil(t, v.SubscriptionEnd)
	assert.Equal(t, f.now.AddDate(0, 0, 365), *v.SubscriptionEnd)

	res, err := f.svc.List(context.Background(), "", ListQuery{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "public", res.Items[0].Kind())
	assert.Equal(t, []string{events.ListingCreated}, f.events.types())
}

func TestSelfRegistrationStaysHiddenUntilActivated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.svc.Create(ctx, "", CreateInput{
		Name:          "Bakery",
		Category:      "food",
		OwnerEmail:    " A@B.com ",
		OwnerPassword: "pw123",
		IsPremium:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPending, v.SubscriptionStatus)
	assert.False(t, v.IsPremium, "premium is admin-controlled")
	assert.Equal(t, "a@b.com", v.OwnerEmail)

	stored, err := f.store.GetListing(ctx, v.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "pw123", stored.OwnerSecretDigest)

	res, err := f.svc.List(ctx, "", ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, res.Items)

	_, err = f.svc.Get(ctx, "", v.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	login, err := f.svc.OwnerLogin(ctx, "a@b.com", "pw123")
	require.NoError(t, err)
	assert.Equal(t, v.ID, login.PlaceID)
	assert.Equal(t, subscription.StatusPending, login.SubscriptionStatus)
	assert.NotEmpty(t, login.Token)

	for _, cred := range []string{"pw123", login.Token} {
		got, err := f.svc.Get(ctx, cred, v.ID)
		require.NoError(t, err)
		assert.Equal(t, "authenticated", got.Kind())
		assert.Equal(t, subscription.StatusPending, got.Public().SubscriptionStatus)
	}

	// The owner sees their own pending listing in list results.
	res, err = f.svc.List(ctx, login.Token, ListQuery{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "authenticated", res.Items[0].Kind())
}

func TestIncludeHiddenIsIgnoredForVisitors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	adminCreate(t, f, CreateInput{Name: "Visible", Category: "cafe"})
	_, err := f.svc.Create(ctx, "", CreateInput{Name: "Hidden", Category: "cafe", OwnerEmail: "h@x.com", OwnerPassword: "pw"})
	require.NoError(t, err)

	res, err := f.svc.List(ctx, "", ListQuery{IncludeHidden: true})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Visible", res.Items[0].Public().Name)

	res, err = f.svc.List(ctx, "wrong-code", ListQuery{IncludeHidden: true})
	require.NoError(t, err)
	assert.Len(t, res.Items, 1)

	res, err = f.svc.List(ctx, testAdminSecret, ListQuery{IncludeHidden: true})
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)

	res, err = f.svc.List(ctx, testAdminSecret, ListQuery{})
	require.NoError(t, err)
	assert.Len(t, res.Items, 1, "admin without include_hidden sees the public set")
}

type countingHasher struct {
	access.Hasher
	mu       sync.Mutex
	verifies int
}

func (h *countingHasher) Verify(secret, digest string) bool {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	return h.Hasher.Verify(secret, digest)
}

func TestListNeverVerifiesRawSecrets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hasher := &countingHasher{Hasher: access.NewBcryptHasher(bcrypt.MinCost)}
	f.svc.resolver = access.NewResolver(testAdminSecret, hasher, access.NewTokenIssuer("test-signing-key", time.Hour))
	for i := 0; i < 5; i++ {
		_, err := f.svc.Create(ctx, "", CreateInput{
			Name:          fmt.Sprintf("Pending %d", i),
			Category:      "cafe",
			OwnerEmail:    fmt.Sprintf("p%d@x.com", i),
			OwnerPassword: "pw123",
		})
		require.NoError(t, err)
	}

	for _, cred := range []string{"junk", "pw123"} {
		res, err := f.svc.List(ctx, cred, ListQuery{})
		require.NoError(t, err)
		assert.Empty(t, res.Items)
	}
	assert.Zero(t, hasher.verifies)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		cred string
		in   CreateInput
		kind error
	}{
		{"missing name", testAdminSecret, CreateInput{Category: "cafe"}, ErrValidation},
		{"blank name", testAdminSecret, CreateInput{Name: "   ", Category: "cafe"}, ErrValidation},
		{"missing category", testAdminSecret, CreateInput{Name: "X"}, ErrValidation},
		{"lat without lng", testAdminSecret, CreateInput{Name: "X", Category: "c", Latitude: ptr(31.9)}, ErrValidation},
		{"lat out of range", testAdminSecret, CreateInput{Name: "X", Category: "c", Latitude: ptr(91), Longitude: ptr(35)}, ErrValidation},
		{"bad email", "", CreateInput{Name: "X", Category: "c", OwnerEmail: "nope", OwnerPassword: "pw"}, ErrValidation},
		{"self-registration without email", "", CreateInput{Name: "X", Category: "c", OwnerPassword: "pw"}, ErrValidation},
		{"self-registration without secret", "", CreateInput{Name: "X", Category: "c", OwnerEmail: "x@y.com"}, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.cred, tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
		})
	}
}

func TestCreateDuplicateEmailConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, "", CreateInput{Name: "A", Category: "c", OwnerEmail: "dup@x.com", OwnerPassword: "pw"})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, "", CreateInput{Name: "B", Category: "c", OwnerEmail: "DUP@x.com", OwnerPassword: "pw2"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))
	assert.Equal(t, "this email is already registered, please log in", Message(err))
}

func TestOwnerLoginFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, "", CreateInput{Name: "A", Category: "c", OwnerEmail: "a@b.com", OwnerPassword: "pw123"})
	require.NoError(t, err)

	_, err = f.svc.OwnerLogin(ctx, "a@b.com", "wrong")
	assert.True(t, errors.Is(err, ErrUnauthorized))
	_, err = f.svc.OwnerLogin(ctx, "nobody@b.com", "pw123")
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, "wrong login details", Message(err))
	_, err = f.svc.OwnerLogin(ctx, "", "")
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestVerifyAdmin(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.svc.VerifyAdmin(testAdminSecret))
	assert.True(t, errors.Is(f.svc.VerifyAdmin("nope"), ErrUnauthorized))
	assert.True(t, errors.Is(f.svc.VerifyAdmin(""), ErrUnauthorized))
}

func TestActivateFromLapsedWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.svc.Create(ctx, "", CreateInput{Name: "A", Category: "c", OwnerEmail: "a@b.com", OwnerPassword: "pw"})
	require.NoError(t, err)

	res, err := f.svc.Activate(ctx, testAdminSecret, v.ID, ActivateInput{Months: 3, Amount: 150})
	require.NoError(t, err)
	assert.Equal(t, f.now.AddDate(0, 0, 90), res.EndDate)
	assert.Equal(t, 150.0, res.TotalRevenue)
	assert.Equal(t, subscription.StatusActive, res.Status)

	got, err := f.svc.Get(ctx, "", v.ID)
	require.NoError(t, err)
	assert.True(t, got.Public().IsVerified)

	hist, err := f.svc.ActivationHistory(ctx, testAdminSecret, v.ID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.False(t, hist[0].Stacked)
	assert.Equal(t, 90, hist[0].Days)
}

func TestActivateStacksOntoRunningWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := adminCreate(t, f, CreateInput{Name: "A", Category: "c"})
	start := *v.SubscriptionStart
	end := *v.SubscriptionEnd

	f.advance(24 * time.Hour)
	res, err := f.svc.Activate(ctx, testAdminSecret, v.ID, ActivateInput{Months: 1, Amount: 50})
	require.NoError(t, err)
	assert.Equal(t, end.AddDate(0, 0, 30), res.EndDate)

	stored, err := f.store.GetListing(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, start, *stored.SubscriptionStart)
	assert.Equal(t, "completed", stored.PaymentStatus)

	res, err = f.svc.Activate(ctx, testAdminSecret, v.ID, ActivateInput{Months: 1, Amount: 25})
	require.NoError(t, err)
	assert.Equal(t, 75.0, res.TotalRevenue)
}

func TestActivateRequiresAdminAndValidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.svc.Create(ctx, "", CreateInput{Name: "A", Category: "c", OwnerEmail: "a@b.com", OwnerPassword: "pw"})
	require.NoError(t, err)

	_, err = f.svc.Activate(ctx, "pw", v.ID, ActivateInput{Months: 1})
	assert.True(t, errors.Is(err, ErrUnauthorized))
	_, err = f.svc.Activate(ctx, testAdminSecret, v.ID, ActivateInput{Months: 0})
	assert.True(t, errors.Is(err, ErrValidation))
	_, err = f.svc.Activate(ctx, testAdminSecret, v.ID, ActivateInput{Months: 1, Amount: -5})
	assert.True(t, errors.Is(err, ErrValidation))
	_, err = f.svc.Activate(ctx, testAdminSecret, 999, ActivateInput{Months: 1})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestExpiredListingLocksOwnerOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.svc.Create(ctx, "", CreateInput{Name: "A", Category: "c", OwnerEmail: "a@b.com", OwnerPassword: "pw"})
	require.NoError(t, err)
	_, err = f.svc.Activate(ctx, testAdminSecret, v.ID, ActivateInput{Months: 1})
	require.NoError(t, err)

	f.advance(31 * 24 * time.Hour)

	_, err = f.svc.Get(ctx, "", v.ID)
	assert.True(t, errors.Is(err, ErrNotFound), "expired listings are hidden from visitors")

	got, err := f.svc.Get(ctx, "pw", v.ID)
	require.NoError(t, err)
	assert.True(t, got.Public().IsExpired)

	_, err = f.svc.Update(ctx, "pw", v.ID, map[string]interface{}{"description": "new"})
	assert.True(t, errors.Is(err, ErrExpired))
	_, err = f.svc.UploadImages(ctx, "pw", v.ID, []Upload{{Filename: "a.jpg", Data: []byte("x")}})
	assert.True(t, errors.Is(err, ErrExpired))

	_, err = f.svc.Update(ctx, testAdminSecret, v.ID, map[string]interface{}{"description": "admin edit"})
	assert.NoError(t, err)

	login, err := f.svc.OwnerLogin(ctx, "a@b.com", "pw")
	require.NoError(t, err)
	assert.True(t, login.IsExpired)

	require.NoError(t, f.svc.RequestRenewal(ctx, "pw", v.ID))
	got, err = f.svc.Get(ctx, "pw", v.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPending, got.Public().SubscriptionStatus)
}

func TestUpdateRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.svc.Create(ctx, "", CreateInput{Name: "A", Category: "c", OwnerEmail: "a@b.com", OwnerPassword: "pw"})
	require.NoError(t, err)
	_, err = f.svc.Activate(ctx, testAdminSecret, v.ID, ActivateInput{Months: 2})
	require.NoError(t, err)

	got, err := f.svc.Update(ctx, "pw", v.ID, map[string]interface{}{
		"description": "fresh bread",
		"is_premium":  true,
		"unknown":     "ignored",
		"latitude":    31.9,
		"longitude":   35.2,
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh bread", got.Public().Description)
	assert.False(t, got.Public().IsPremium, "owners cannot grant themselves premium")
	require.NotNil(t, got.Public().Latitude)

	got, err = f.svc.Update(ctx, testAdminSecret, v.ID, map[string]interface{}{"is_premium": true})
	require.NoError(t, err)
	assert.True(t, got.Public().IsPremium)

	_, err = f.svc.Update(ctx, "pw", v.ID, map[string]interface{}{"latitude": nil})
	assert.True(t, errors.Is(err, ErrValidation), "coordinates must stay paired")

	_, err = f.svc.Update(ctx, "pw", v.ID, map[string]interface{}{"name": ""})
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = f.svc.Update(ctx, "pw", v.ID, map[string]interface{}{"phone": 12})
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = f.svc.Update(ctx, "other", v.ID, map[string]interface{}{"name": "Stolen"})
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestUpdateRotatesOwnerSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.svc.Create(ctx, "", CreateInput{Name: "A", Category: "c", OwnerEmail: "a@b.com", OwnerPassword: "old"})
	require.NoError(t, err)
	login, err := f.svc.OwnerLogin(ctx, "a@b.com", "old")
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, "old", v.ID, map[string]interface{}{"owner_password": "new"})
	require.NoError(t, err)

	stored, err := f.store.GetListing(ctx, v.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "new", stored.OwnerSecretDigest)

	_, err = f.svc.Get(ctx, login.Token, v.ID)
	assert.True(t, errors.Is(err, ErrNotFound), "tokens issued before rotation stop working")
	_, err = f.svc.OwnerLogin(ctx, "a@b.com", "new")
	assert.NoError(t, err)
}

func TestDeleteRemovesFilesAndRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := adminCreate(t, f, CreateInput{Name: "A", Category: "c"})

	locs, err := f.svc.UploadImages(ctx, testAdminSecret, v.ID, []Upload{
		{Filename: "one.JPG", Data: []byte("1")},
		{Filename: "two.png", Data: []byte("2")},
	})
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, 2, f.files.count())

	require.NoError(t, f.svc.Delete(ctx, testAdminSecret, v.ID))
	assert.Equal(t, 0, f.files.count())
	assert.Empty(t, f.store.images)

	_, err = f.svc.Get(ctx, testAdminSecret, v.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	logs, err := f.svc.DeleteLogs(ctx, testAdminSecret, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.DeleteReasonAdmin, logs[0].Reason)
	assert.Equal(t, 2, logs[0].ImageCount)
}

func TestDeleteRequiresPrivilege(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := adminCreate(t, f, CreateInput{Name: "A", Category: "c"})

	err := f.svc.Delete(ctx, "", v.ID)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	err = f.svc.Delete(ctx, testAdminSecret, 404)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUploadValidatesBeforeWriting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := adminCreate(t, f, CreateInput{Name: "A", Category: "c"})

	_, err := f.svc.UploadImages(ctx, testAdminSecret, v.ID, []Upload{
		{Filename: "ok.jpg", Data: []byte("1")},
		{Filename: "evil.exe", Data: []byte("2")},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, 0, f.files.count())

	_, err = f.svc.UploadImages(ctx, testAdminSecret, v.ID, nil)
	assert.True(t, errors.Is(err, ErrValidation))

	many := make([]Upload, 11)
	for i := range many {
		many[i] = Upload{Filename: "x.png", Data: []byte("x")}
	}
	_, err = f.svc.UploadImages(ctx, testAdminSecret, v.ID, many)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestUploadCleansUpOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := adminCreate(t, f, CreateInput{Name: "A", Category: "c"})

	f.files.failAfter = 1
	_, err := f.svc.UploadImages(ctx, testAdminSecret, v.ID, []Upload{
		{Filename: "a.jpg", Data: []byte("1")},
		{Filename: "b.jpg", Data: []byte("2")},
	})
	assert.True(t, errors.Is(err, ErrStorage))
	assert.Equal(t, 0, f.files.count())

	f.files.failAfter = -1
	f.store.failAdd = errors.New("db down")
	_, err = f.svc.UploadImages(ctx, testAdminSecret, v.ID, []Upload{{Filename: "a.jpg", Data: []byte("1")}})
	assert.True(t, errors.Is(err, ErrStorage))
	assert.Equal(t, 0, f.files.count())
}

func TestUploadAppendsSortOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := adminCreate(t, f, CreateInput{Name: "A", Category: "c"})

	_, err := f.svc.UploadImages(ctx, testAdminSecret, v.ID, []Upload{{Filename: "a.jpg", Data: []byte("1")}})
	require.NoError(t, err)
	_, err = f.svc.UploadImages(ctx, testAdminSecret, v.ID, []Upload{{Filename: "b.webp", Data: []byte("2")}})
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, "", v.ID)
	require.NoError(t, err)
	imgs := got.Public().Images
	require.Len(t, imgs, 2)
	assert.Equal(t, 0, imgs[0].SortOrder)
	assert.Equal(t, 1, imgs[1].SortOrder)

	require.NoError(t, f.svc.DeleteImage(ctx, testAdminSecret, imgs[0].ID))
	err = f.svc.DeleteImage(ctx, testAdminSecret, imgs[0].ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	err = f.svc.DeleteImage(ctx, "", imgs[1].ID)
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestDeleteImageKeepsFileWhenRowSurvives(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := adminCreate(t, f, CreateInput{Name: "A", Category: "c"})
	_, err := f.svc.UploadImages(ctx, testAdminSecret, v.ID, []Upload{{Filename: "a.jpg", Data: []byte("1")}})
	require.NoError(t, err)
	got, err := f.svc.Get(ctx, "", v.ID)
	require.NoError(t, err)
	img := got.Public().Images[0]

	f.store.failDelete = errors.New("db down")
	err = f.svc.DeleteImage(ctx, testAdminSecret, img.ID)
	assert.True(t, errors.Is(err, ErrStorage))
	assert.Equal(t, 1, f.files.count(), "the file stays while its row exists")

	f.store.failDelete = nil
	require.NoError(t, f.svc.DeleteImage(ctx, testAdminSecret, img.ID))
	assert.Equal(t, 0, f.files.count())
}

func TestUploadRejectsImagesOverPixelBudget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := adminCreate(t, f, CreateInput{Name: "A", Category: "c"})
	f.svc.images = &filestore.Processor{Quality: 80, MaxPixels: 100}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 20, 20))))
	_, err := f.svc.UploadImages(ctx, testAdminSecret, v.ID, []Upload{{Filename: "big.png", Data: buf.Bytes()}})
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, 0, f.files.count())

	buf.Reset()
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 10, 10))))
	_, err = f.svc.UploadImages(ctx, testAdminSecret, v.ID, []Upload{{Filename: "ok.png", Data: buf.Bytes()}})
	require.NoError(t, err)
	assert.Equal(t, 1, f.files.count())
}

func TestImageExtension(t *testing.T) {
	tests := []struct {
		name string
		ext  string
		ok   bool
	}{
		{"photo.jpg", "jpg", true},
		{"PHOTO.JPEG", "jpeg", true},
		{"dir/../shot.Png", "png", true},
		{"a.b.webp", "webp", true},
		{"script.php", "php", false},
		{"noext", "", false},
		{"trailing.", "", false},
		{"image.jpg.exe", "exe", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, ok := ImageExtension(tt.name)
			assert.Equal(t, tt.ext, ext)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestListOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	far := adminCreate(t, f, CreateInput{Name: "Far", Category: "c", Latitude: ptr(32.2), Longitude: ptr(35.2)})
	near := adminCreate(t, f, CreateInput{Name: "Near", Category: "c", Latitude: ptr(31.91), Longitude: ptr(35.21)})
	nowhere := adminCreate(t, f, CreateInput{Name: "Nowhere", Category: "c"})
	premium := adminCreate(t, f, CreateInput{Name: "Premium", Category: "c", IsPremium: true, Latitude: ptr(32.5), Longitude: ptr(35.5)})

	res, err := f.svc.List(ctx, "", ListQuery{Lat: ptr(31.9), Lng: ptr(35.2)})
	require.NoError(t, err)
	ids := make([]uint, 0, len(res.Items))
	for _, v := range res.Items {
		ids = append(ids, v.Public().ID)
	}
	assert.Equal(t, []uint{premium.ID, near.ID, far.ID, nowhere.ID}, ids)
	assert.NotNil(t, res.Items[1].Public().Distance)
	assert.Nil(t, res.Items[3].Public().Distance)

	res, err = f.svc.List(ctx, "", ListQuery{})
	require.NoError(t, err)
	ids = ids[:0]
	for _, v := range res.Items {
		ids = append(ids, v.Public().ID)
	}
	assert.Equal(t, []uint{premium.ID, nowhere.ID, near.ID, far.ID}, ids, "newest first without coordinates")
}

func TestListLimitAndTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		adminCreate(t, f, CreateInput{Name: "P", Category: "c"})
	}

	res, err := f.svc.List(ctx, "", ListQuery{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)
	assert.Equal(t, 5, res.Total)

	assert.Equal(t, 40, f.svc.clampLimit(0))
	assert.Equal(t, 2000, f.svc.clampLimit(50000))
}

func TestListSkipsMalformedRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	good := adminCreate(t, f, CreateInput{Name: "Good", Category: "c"})
	bad := adminCreate(t, f, CreateInput{Name: "Bad", Category: "c"})
	f.store.raw(bad.ID, func(l *models.Listing) { l.Category = "" })

	res, err := f.svc.List(ctx, "", ListQuery{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, good.ID, res.Items[0].Public().ID)
	assert.Equal(t, []Skip{{ListingID: bad.ID, Reason: SkipMissingCategory}}, res.Skipped)
}

func TestListFiltersAndStorageFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	adminCreate(t, f, CreateInput{Name: "Zeit Cafe", Category: "cafe", Area: "Al-Tireh"})
	adminCreate(t, f, CreateInput{Name: "Falafel", Category: "food", Area: "Downtown", Tags: "vegan"})

	res, err := f.svc.List(ctx, "", ListQuery{Query: "VEGAN"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Falafel", res.Items[0].Public().Name)

	res, err = f.svc.List(ctx, "", ListQuery{Category: "cafe"})
	require.NoError(t, err)
	assert.Len(t, res.Items, 1)

	f.store.failList = errors.New("connection refused")
	_, err = f.svc.List(ctx, "", ListQuery{})
	assert.True(t, errors.Is(err, ErrStorage))
	assert.Equal(t, "internal storage error", Message(err))
}

type stubIndex struct {
	ids []uint
	err error
}

func (s *stubIndex) IndexListing(context.Context, *models.Listing) error { return nil }
func (s *stubIndex) RemoveListing(context.Context, uint) error           { return nil }
func (s *stubIndex) SearchIDs(context.Context, string, int) ([]uint, error) {
	return s.ids, s.err
}

func TestListUsesIndexWithFallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := adminCreate(t, f, CreateInput{Name: "Alpha", Category: "c"})
	adminCreate(t, f, CreateInput{Name: "Beta", Category: "c"})

	idx := &stubIndex{ids: []uint{a.ID}}
	f.svc.index = idx
	res, err := f.svc.List(ctx, "", ListQuery{Query: "anything"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, a.ID, res.Items[0].Public().ID)

	idx.ids = nil
	res, err = f.svc.List(ctx, "", ListQuery{Query: "anything"})
	require.NoError(t, err)
	assert.Empty(t, res.Items, "no index hits means no results")

	idx.err = errors.New("meilisearch down")
	res, err = f.svc.List(ctx, "", ListQuery{Query: "beta"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Beta", res.Items[0].Public().Name)
}

func TestListLogsWhenIndexCapIsHit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := adminCreate(t, f, CreateInput{Name: "Alpha", Category: "c"})

	ids := make([]uint, indexSearchCap)
	for i := range ids {
		ids[i] = a.ID + uint(i)
	}
	f.svc.index = &stubIndex{ids: ids}

	var logs bytes.Buffer
	log.SetOutput(&logs)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	res, err := f.svc.List(ctx, "", ListQuery{Query: "alpha"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Contains(t, logs.String(), "hit the index cap")

	logs.Reset()
	f.svc.index = &stubIndex{ids: []uint{a.ID}}
	_, err = f.svc.List(ctx, "", ListQuery{Query: "alpha"})
	require.NoError(t, err)
	assert.NotContains(t, logs.String(), "index cap")
}

func TestStatsUseResolvedStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	adminCreate(t, f, CreateInput{Name: "Active", Category: "c", IsPremium: true})
	_, err := f.svc.Create(ctx, "", CreateInput{Name: "Pending", Category: "c", OwnerEmail: "p@x.com", OwnerPassword: "pw"})
	require.NoError(t, err)
	lapsed := adminCreate(t, f, CreateInput{Name: "Lapsed", Category: "c"})
	past := f.now.Add(-time.Hour)
	// The stored hint still says active.
	f.store.raw(lapsed.ID, func(l *models.Listing) { l.SubscriptionEnd = &past })

	st, err := f.svc.Stats(ctx, testAdminSecret)
	require.NoError(t, err)
	assert.Equal(t, 3, st.TotalPlaces)
	assert.Equal(t, 1, st.ActivePlaces)
	assert.Equal(t, 1, st.PendingPlaces)
	assert.Equal(t, 1, st.ExpiredPlaces)
	assert.Equal(t, 1, st.PremiumPlaces)

	_, err = f.svc.Stats(ctx, "")
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestAssistantContextHasOnlyActiveListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	adminCreate(t, f, CreateInput{Name: "Active", Category: "c", Description: "great hummus"})
	_, err := f.svc.Create(ctx, "", CreateInput{Name: "Pending", Category: "c", OwnerEmail: "p@x.com", OwnerPassword: "pw"})
	require.NoError(t, err)

	sums, err := f.svc.AssistantContext(ctx, 50)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, "Active", sums[0].Name)
}

func TestViewsNeverCarrySecrets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.svc.Create(ctx, "", CreateInput{Name: "A", Category: "c", OwnerEmail: "a@b.com", OwnerPassword: "pw"})
	require.NoError(t, err)
	_, err = f.svc.Activate(ctx, testAdminSecret, v.ID, ActivateInput{Months: 1, Amount: 10})
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, "", v.ID)
	require.NoError(t, err)
	_, isPublic := got.(*PublicView)
	assert.True(t, isPublic)

	got, err = f.svc.Get(ctx, "pw", v.ID)
	require.NoError(t, err)
	auth, ok := got.(*AuthenticatedView)
	require.True(t, ok)
	assert.Equal(t, access.Owner.String(), auth.Access)
	assert.Equal(t, 10.0, auth.PaymentTotal)
}
