package tenant

import (
	"testing"

	. "github.com/onsi/gomega"
	"github.com/relloyd/fieldpipe/config"
	"github.com/relloyd/fieldpipe/logger"
)

func envFrom(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestEnvProviderToleratesPartialTenantSets(t *testing.T) {
	g := NewGomegaWithT(t)
	log := logger.NewLogger("fieldpipe", "error", false)
	p := &EnvProvider{Log: log, Getenv: envFrom(map[string]string{
		"PESTROUTES_OFFICE_1_API_KEY": "k1",
		"PESTROUTES_OFFICE_1_TOKEN":   "t1",
		"PESTROUTES_OFFICE_1_NAME":    "Head Office",
		"PESTROUTES_OFFICE_3_API_KEY": "k3",
		"PESTROUTES_OFFICE_3_TOKEN":   "t3",
		"PESTROUTES_OFFICE_5_API_KEY": "k5", // no token so skipped
	})}
	creds, err := p.Tenants()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(creds).To(Equal([]Credentials{
		{ID: "office_1", Name: "Head Office", APIKey: "k1", Token: "t1"},
		{ID: "office_3", Name: "Office 3", APIKey: "k3", Token: "t3"},
	}))
}

func TestStore(t *testing.T) {
	g := NewGomegaWithT(t)
	s := NewStore(
		Credentials{ID: "office_1", Name: "One", APIKey: "k1", Token: "t1"},
		Credentials{ID: "office_2", Name: "Two", APIKey: "k2", Token: "t2"},
		Credentials{ID: "office_2", Name: "Dup", APIKey: "kx", Token: "tx"},
		Credentials{ID: "office_4", Name: "Four", APIKey: "k4"},
	)
	g.Expect(s.Len()).To(Equal(2))
	g.Expect(s.IDs()).To(Equal([]string{"office_1", "office_2"}))
	two, ok := s.Get("office_2")
	g.Expect(ok).To(BeTrue())
	g.Expect(two.Name).To(Equal("Two"))
	_, ok = s.Get("office_4")
	g.Expect(ok).To(BeFalse())

	selected, missing := s.Select([]string{"office_9", "office_2"})
	g.Expect(selected).To(HaveLen(1))
	g.Expect(selected[0].ID).To(Equal("office_2"))
	g.Expect(missing).To(Equal([]string{"office_9"}))

	all, missing := s.Select(nil)
	g.Expect(all).To(HaveLen(2))
	g.Expect(missing).To(BeEmpty())
}

func TestCredentialsStringMasksSecrets(t *testing.T) {
	g := NewGomegaWithT(t)
	c := Credentials{ID: "office_1", Name: "One", APIKey: "abcdef123", Token: "supersecret"}
	g.Expect(c.String()).To(Equal("id=office_1; name=One; apiKey=abcd****; token=****"))
	g.Expect(c.String()).ToNot(ContainSubstring("supersecret"))
}

func TestFileProviderAndChain(t *testing.T) {
	g := NewGomegaWithT(t)
	f := config.NewConfigFileWithDir(t.TempDir(), "credentials.yaml")
	fp := &FileProvider{File: f}

	empty, err := fp.Tenants()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(empty).To(BeEmpty())

	g.Expect(fp.AddTenant(Credentials{ID: "office_10", Name: "Ten", APIKey: "k10", Token: "t10"})).To(Succeed())
	g.Expect(fp.AddTenant(Credentials{ID: "office_2", Name: "File Two", APIKey: "fk2", Token: "ft2"})).To(Succeed())
	g.Expect(fp.AddTenant(Credentials{ID: "office_2", Name: "File Two B", APIKey: "fk2", Token: "ft2"})).To(Succeed())
	g.Expect(fp.AddTenant(Credentials{ID: "office_3"})).ToNot(Succeed())

	env := &EnvProvider{Getenv: envFrom(map[string]string{
		"PESTROUTES_OFFICE_2_API_KEY": "ek2",
		"PESTROUTES_OFFICE_2_TOKEN":   "et2",
		"PESTROUTES_OFFICE_1_API_KEY": "ek1",
		"PESTROUTES_OFFICE_1_TOKEN":   "et1",
	})}
	s, err := LoadStore(ChainProvider{fp, env})
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(s.IDs()).To(Equal([]string{"office_1", "office_2", "office_10"}))
	two, _ := s.Get("office_2")
	g.Expect(two.Name).To(Equal("File Two B"))
	g.Expect(two.APIKey).To(Equal("fk2"))

	g.Expect(fp.RemoveTenant("office_10")).To(Succeed())
	g.Expect(fp.RemoveTenant("office_10")).To(MatchError(`tenant "office_10" not found`))
	left, err := fp.Tenants()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(left).To(HaveLen(1))
}
