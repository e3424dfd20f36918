package request_test

import (
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lzqa/feature-qa/internal/request"
)

var _ = Describe("Parse", func() {
	It("parses the flat form", func() {
		req, err := request.Parse(strings.NewReader(`{
			"action": "Deploy",
			"ticket": " refs/heads/JIRA-123 ",
			"environments": ["gcc2_dev", "gcc2_prd"],
			"project": "/gcci-agency-baseline/"
		}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(req).To(Equal(request.Request{
			Action:       request.ActionDeploy,
			Ticket:       "JIRA-123",
			Environments: []string{"gcc2_dev", "gcc2_prd"},
			Project:      "gcci-agency-baseline",
		}))
	})

	It("accepts the tool-call form with string-encoded arguments", func() {
		req, err := request.Parse(strings.NewReader(`{
			"name": "gitlab_reset_project_to_main_branch",
			"arguments": "{\"branch\": \"JIRA-9\", \"gcc_env\": \"gcc2_dev\", \"project\": \"baseline\"}"
		}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(req.Action).To(Equal(request.ActionReset))
		Expect(req.Ticket).To(Equal("JIRA-9"))
		Expect(req.Environments).To(Equal([]string{"gcc2_dev"}))
		Expect(req.Project).To(Equal("baseline"))
	})

	It("accepts object arguments", func() {
		req, err := request.Parse(strings.NewReader(`{
			"name": "gitlab_deploy_a_feature_branch_to_project",
			"arguments": {"branch": "JIRA-9", "environment": "gcc2_prd", "project": "baseline"}
		}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(req.Action).To(Equal(request.ActionDeploy))
		Expect(req.Environments).To(Equal([]string{"gcc2_prd"}))
	})

	It("keeps an empty ticket for the precondition checks to report", func() {
		req, err := request.Parse(strings.NewReader(`{"action": "validate", "gcc_env": "gcc2_dev", "project": "baseline"}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(req.Ticket).To(BeEmpty())
	})

	DescribeTable("rejects incomplete requests",
		func(body string) {
			_, err := request.Parse(strings.NewReader(body))
			Expect(err).To(HaveOccurred())
		},
		Entry("bad json", `{`),
		Entry("missing action", `{"ticket": "JIRA-1", "gcc_env": "gcc2_dev", "project": "p"}`),
		Entry("unknown action", `{"action": "destroy", "ticket": "JIRA-1", "gcc_env": "gcc2_dev", "project": "p"}`),
		Entry("missing project", `{"action": "deploy", "ticket": "JIRA-1", "gcc_env": "gcc2_dev"}`),
		Entry("missing environment", `{"action": "deploy", "ticket": "JIRA-1", "project": "p"}`),
		Entry("bad arguments", `{"name": "gitlab_reset_project_to_main_branch", "arguments": "{"}`),
	)
})

var _ = Describe("ParseFile", func() {
	It("reads a request from disk", func() {
		path := filepath.Join(GinkgoT().TempDir(), "request.json")
		Expect(os.WriteFile(path, []byte(`{"action": "reset", "ticket": "JIRA-5", "gcc_env": "gcc2_dev", "project": "p"}`), 0o600)).To(Succeed())

		req, err := request.ParseFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(req.Action).To(Equal(request.ActionReset))
		Expect(req.Ticket).To(Equal("JIRA-5"))
	})

	It("reports a missing file", func() {
		_, err := request.ParseFile(filepath.Join(GinkgoT().TempDir(), "missing.json"))
		Expect(err).To(MatchError(ContainSubstring("open request file")))
	})
})
