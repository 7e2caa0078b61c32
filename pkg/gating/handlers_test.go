package gating

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lockgate/lockgate/pkg/authz"
	"github.com/lockgate/lockgate/pkg/cache"
	"github.com/lockgate/lockgate/pkg/challenge"
	"github.com/lockgate/lockgate/pkg/community"
	"github.com/lockgate/lockgate/pkg/gaterr"
	"github.com/lockgate/lockgate/pkg/locks"
	"github.com/lockgate/lockgate/pkg/verifier/evm"
	"github.com/lockgate/lockgate/pkg/verifier/universalprofile"
)

func newTestRouter(f *fixture) http.Handler {
	r := chi.NewRouter()
	r.Use(authz.IdentityMiddleware(nil))
	r.Use(community.NewMiddleware(community.ModeMulti))
	RegisterRoutes(r, NewHandlers(f.svc), cache.NewCacheManager(cache.DefaultCacheConfig()))
	return r
}

func call(r http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(community.Header, "c1")
	if user != "" {
		req.Header.Set("X-Remote-User", user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeAs[T any](w *httptest.ResponseRecorder) T {
	var out T
	Expect(json.NewDecoder(w.Body).Decode(&out)).To(Succeed())
	return out
}

var _ = Describe("Gating API", func() {
	var (
		f      *fixture
		router http.Handler
		lock   *locks.Lock
	)

	BeforeEach(func() {
		f = newFixture(GinkgoT())
		router = newTestRouter(f)
		lock = f.createLock(GinkgoT(), true, upCategory(true))
		f.apply(GinkgoT(), lock, post1, true, 0)
	})

	issue := func(category string) challenge.Challenge {
		w := call(router, http.MethodPost, "/locks/"+lock.ID+"/challenges", "", map[string]any{
			"category": category,
			"address":  f.addr.Hex(),
			"context":  post1,
		})
		Expect(w.Code).To(Equal(http.StatusCreated), w.Body.String())
		return decodeAs[challenge.Challenge](w)
	}

	submit := func(user string, c challenge.Challenge) *httptest.ResponseRecorder {
		return call(router, http.MethodPost, "/locks/"+lock.ID+"/categories/"+universalprofile.Type+"/verifications", user, map[string]any{
			"signature": sign(GinkgoT(), f.key, c.Message),
			"message":   c.Message,
			"address":   f.addr.Hex(),
			"context":   post1,
		})
	}

	Context("category discovery", func() {
		It("lists the registered verifiers", func() {
			w := call(router, http.MethodGet, "/categories", "", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			resp := decodeAs[CategoriesResponse](w)
			Expect(resp.Size).To(Equal(2))
			types := []string{resp.Items[0].Type, resp.Items[1].Type}
			Expect(types).To(Equal([]string{evm.Type, universalprofile.Type}))
			Expect(resp.Items).To(HaveEach(HaveField("Name", Not(BeEmpty()))))
			Expect(resp.Items).To(HaveEach(HaveField("DefaultRequirements",
				WithTransform(func(raw json.RawMessage) string { return string(raw) }, HavePrefix("{")))))
		})

		It("serves repeated listings from cache", func() {
			first := call(router, http.MethodGet, "/categories", "", nil)
			second := call(router, http.MethodGet, "/categories", "", nil)
			Expect(second.Body.String()).To(Equal(first.Body.String()))
		})
	})

	Context("verifying a category", func() {
		It("denies access before verification", func() {
			w := call(router, http.MethodGet, "/resources/post/p1/access", "u1", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			st := decodeAs[Status](w)
			Expect(st.CanAccess).To(BeFalse())
			Expect(st.Total).To(Equal(1))
			Expect(st.Verified).To(Equal(0))
		})

		It("grants access after a valid signed submission", func() {
			f.up.SetNative(f.addr, oneToken)
			c := issue(universalprofile.Type)
			Expect(c.Context).To(Equal(post1))
			Expect(c.LockID).To(Equal(lock.ID))

			By("submitting the signed challenge")
			w := submit("u1", c)
			Expect(w.Code).To(Equal(http.StatusOK), w.Body.String())
			out := decodeAs[Outcome](w)
			Expect(out.Success).To(BeTrue())
			Expect(out.VerificationStatus).To(Equal(VerificationVerified))
			Expect(out.ExpiresAt).NotTo(BeNil())

			By("reading the lock status for the post")
			w = call(router, http.MethodGet, "/locks/"+lock.ID+"/status?contextType=post&contextId=p1", "u1", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			st := decodeAs[Status](w)
			Expect(st.CanAccess).To(BeTrue())
			Expect(st.Categories).To(HaveLen(1))
			Expect(st.ExpiresAt).NotTo(BeNil())
			Expect(st.ExpiresAt.Equal(*out.ExpiresAt)).To(BeTrue())
		})

		It("reports an unmet requirement as 403 with the outcome body", func() {
			w := submit("u1", issue(universalprofile.Type))
			Expect(w.Code).To(Equal(http.StatusForbidden))
			out := decodeAs[Outcome](w)
			Expect(out.Success).To(BeFalse())
			Expect(out.VerificationStatus).To(Equal(VerificationFailed))
			Expect(out.Error).To(Equal(gaterr.CodeRequirementNotMet))
		})

		It("reports a provider outage as 503", func() {
			f.up.SetNative(f.addr, oneToken)
			f.up.Fail("balance")
			w := submit("u1", issue(universalprofile.Type))
			Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(decodeAs[Outcome](w).Error).To(Equal(gaterr.CodeProvider))
		})

		It("rejects a tampered message as 401", func() {
			f.up.SetNative(f.addr, oneToken)
			c := issue(universalprofile.Type)
			sig := sign(GinkgoT(), f.key, c.Message)
			w := call(router, http.MethodPost, "/locks/"+lock.ID+"/categories/"+universalprofile.Type+"/verifications", "u1", map[string]any{
				"signature": sig,
				"message":   c.Message + "\n",
				"address":   f.addr.Hex(),
				"context":   post1,
			})
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
			Expect(decodeAs[Outcome](w).Error).To(Equal(gaterr.CodeChallengeMismatch))
		})

		It("requires an authenticated caller", func() {
			w := submit("", issue(universalprofile.Type))
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Context("request validation", func() {
		It("rejects status queries without a valid context", func() {
			w := call(router, http.MethodGet, "/locks/"+lock.ID+"/status?contextType=thread&contextId=1", "u1", nil)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(decodeAs[map[string]string](w)["error"]).To(Equal(gaterr.CodeConfiguration))
		})

		It("rejects unknown body fields", func() {
			w := call(router, http.MethodPost, "/locks/"+lock.ID+"/challenges", "", map[string]any{
				"category": universalprofile.Type,
				"address":  f.addr.Hex(),
				"context":  post1,
				"expires":  "never",
			})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 404 for a lock of another community", func() {
			req := httptest.NewRequest(http.MethodGet, "/locks/"+lock.ID+"/status?contextType=post&contextId=p1", nil)
			req.Header.Set(community.Header, "c2")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusNotFound))
			Expect(decodeAs[map[string]string](w)["error"]).To(Equal(gaterr.CodeNotFound))
		})

		It("treats resources without a lock as open", func() {
			w := call(router, http.MethodGet, "/resources/board/elsewhere/access", "", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(decodeAs[Status](w).CanAccess).To(BeTrue())
		})
	})
})
