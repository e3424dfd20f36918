package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	gl "github.com/lzqa/feature-qa/internal/gitlab"
	"github.com/lzqa/feature-qa/internal/orchestrator"
	"github.com/lzqa/feature-qa/internal/targets"
)

const (
	ticket   = "JIRA-123"
	devGroup = "agency-baseline/dev/gvt"
	stgGroup = "agency-baseline/stg/gvt"
)

var _ = Describe("Orchestrator", func() {
	var (
		ctx       context.Context
		fake      *fakeGitLab
		canonical *fakeBranchSource
		recorder  *fakeRecorder
		orch      *orchestrator.Orchestrator
		dev       *fakeProject
		devTarget targets.RepoTarget
	)

	newOrchestrator := func(cfg orchestrator.Config) *orchestrator.Orchestrator {
		logger := slog.New(slog.NewTextHandler(GinkgoWriter, nil))
		return orchestrator.New(cfg, fake, canonical, logger, orchestrator.WithStepRecorder(recorder))
	}

	BeforeEach(func() {
		ctx = context.Background()
		fake = newFakeGitLab()
		canonical = &fakeBranchSource{branches: map[string]bool{ticket: true}}
		recorder = &fakeRecorder{}
		dev = fake.addProject(devGroup+"/baseline", "main", "main")
		devTarget = targets.RepoTarget{Environment: "gcc2_dev", GroupPath: devGroup, Project: "baseline"}
		orch = newOrchestrator(orchestrator.Config{})
	})

	Describe("Resolve", func() {
		It("prefers main over master", func() {
			fake.addProject(stgGroup+"/baseline", "master", "master", "main")
			run, err := orch.Resolve(ctx, ticket, []targets.RepoTarget{
				{Environment: "gcc2_stg", GroupPath: stgGroup, Project: "baseline"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(run.Repos[0].MainBranch).To(Equal("main"))
			Expect(run.ID).NotTo(BeEmpty())
		})

		It("falls back to master", func() {
			fake.addProject(stgGroup+"/baseline", "master", "master")
			run, err := orch.Resolve(ctx, ticket, []targets.RepoTarget{
				{Environment: "gcc2_stg", GroupPath: stgGroup, Project: "baseline"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(run.Repos[0].MainBranch).To(Equal("master"))
		})

		It("reports a configuration error when no main branch is protected", func() {
			fake.addProject(stgGroup+"/baseline", "develop", "develop")
			_, err := orch.Resolve(ctx, ticket, []targets.RepoTarget{
				{Environment: "gcc2_stg", GroupPath: stgGroup, Project: "baseline"},
			})
			var cfgErr *orchestrator.ConfigurationError
			Expect(errors.As(err, &cfgErr)).To(BeTrue())
			Expect(cfgErr.Target).To(Equal(stgGroup + "/baseline"))
		})

		It("fails when the project does not exist", func() {
			_, err := orch.Resolve(ctx, ticket, []targets.RepoTarget{
				{Environment: "gcc2_dev", GroupPath: devGroup, Project: "missing"},
			})
			Expect(err).To(MatchError(gl.ErrNotFound))
		})

		It("only picks up a trigger whose description matches exactly", func() {
			dev.triggers = []gl.Trigger{
				{ID: 1, Description: "temp token to test JIRA-1234", Token: "t1"},
				{ID: 2, Description: "temp token to test JIRA-123", Token: "t2"},
			}
			run, err := orch.Resolve(ctx, ticket, []targets.RepoTarget{devTarget})
			Expect(err).NotTo(HaveOccurred())
			Expect(run.Repos[0].Trigger).NotTo(BeNil())
			Expect(run.Repos[0].Trigger.ID).To(Equal(2))
		})

		It("leaves the trigger empty when none matches", func() {
			dev.triggers = []gl.Trigger{{ID: 1, Description: "nightly", Token: "t1"}}
			run, err := orch.Resolve(ctx, ticket, []targets.RepoTarget{devTarget})
			Expect(err).NotTo(HaveOccurred())
			Expect(run.Repos[0].Trigger).To(BeNil())
		})

		It("describes a failed lookup by repository and category only", func() {
			fake.failOn("GetProject", dev.project.Path, fmt.Errorf("403 internal body: %w", gl.ErrRejected))
			_, err := orch.Deploy(ctx, ticket, []targets.RepoTarget{devTarget})
			Expect(err).To(MatchError(gl.ErrRejected))
			Expect(orchestrator.DescribeFailure(err)).To(Equal("resolve " + devGroup + "/baseline: rejected by platform"))
			Expect(fake.MutatingCalls()).To(BeEmpty())
		})

		It("treats a trigger list that is not found as no trigger", func() {
			fake.failOn("ListTriggers", dev.project.Path, fmt.Errorf("list pipeline triggers: %w", gl.ErrNotFound))
			run, err := orch.Resolve(ctx, ticket, []targets.RepoTarget{devTarget})
			Expect(err).NotTo(HaveOccurred())
			Expect(run.Repos[0].Trigger).To(BeNil())
		})

		It("rejects duplicate environments", func() {
			_, err := orch.Resolve(ctx, ticket, []targets.RepoTarget{devTarget, devTarget})
			var cfgErr *orchestrator.ConfigurationError
			Expect(errors.As(err, &cfgErr)).To(BeTrue())
		})

		It("issues no mutating calls", func() {
			_, err := orch.Resolve(ctx, ticket, []targets.RepoTarget{devTarget})
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.MutatingCalls()).To(BeEmpty())
		})
	})

	Describe("Validate", func() {
		DescribeTable("reserved tickets never reach a mutating call",
			func(reserved string) {
				run, err := orch.Resolve(ctx, reserved, []targets.RepoTarget{devTarget})
				Expect(err).NotTo(HaveOccurred())

				violations, err := orch.Validate(ctx, run)
				Expect(err).NotTo(HaveOccurred())
				Expect(violations).NotTo(BeEmpty())

				_, err = orch.Deploy(ctx, reserved, []targets.RepoTarget{devTarget})
				var validationErr *orchestrator.ValidationError
				Expect(errors.As(err, &validationErr)).To(BeTrue())

				_, err = orch.Reset(ctx, reserved, []targets.RepoTarget{devTarget})
				Expect(errors.As(err, &validationErr)).To(BeTrue())

				Expect(fake.MutatingCalls()).To(BeEmpty())
			},
			Entry("empty", ""),
			Entry("main", "main"),
			Entry("master", "master"),
		)

		It("flags a default branch owned by another ticket (scenario C)", func() {
			dev.branches["OTHER-TICKET"] = true
			dev.defaultBranch = "OTHER-TICKET"

			run, err := orch.Deploy(ctx, ticket, []targets.RepoTarget{devTarget})
			var validationErr *orchestrator.ValidationError
			Expect(errors.As(err, &validationErr)).To(BeTrue())
			Expect(validationErr.Violations).To(HaveLen(1))
			Expect(validationErr.Violations[0]).To(ContainSubstring("in use by others"))
			Expect(validationErr.Violations[0]).To(ContainSubstring("OTHER-TICKET"))
			Expect(run.Repos).To(HaveLen(1))
			Expect(fake.MutatingCalls()).To(BeEmpty())
		})

		It("accepts a default branch already set to the ticket", func() {
			dev.branches[ticket] = true
			dev.defaultBranch = ticket

			run, err := orch.Resolve(ctx, ticket, []targets.RepoTarget{devTarget})
			Expect(err).NotTo(HaveOccurred())
			Expect(orch.Validate(ctx, run)).To(BeEmpty())
		})

		It("reads the default branch live rather than from resolution", func() {
			run, err := orch.Resolve(ctx, ticket, []targets.RepoTarget{devTarget})
			Expect(err).NotTo(HaveOccurred())

			dev.branches["OTHER-TICKET"] = true
			dev.defaultBranch = "OTHER-TICKET"

			violations, err := orch.Validate(ctx, run)
			Expect(err).NotTo(HaveOccurred())
			Expect(violations).To(ConsistOf(ContainSubstring("in use by others")))
		})

		It("requires the ticket branch in the canonical repository", func() {
			canonical.branches = map[string]bool{}

			_, err := orch.Deploy(ctx, ticket, []targets.RepoTarget{devTarget})
			Expect(err).To(MatchError(ContainSubstring("not found in canonical repository landing/aws-landingzones")))
			Expect(fake.MutatingCalls()).To(BeEmpty())
		})

		It("evaluates every rule and joins the violations", func() {
			dev.defaultBranch = "OTHER-TICKET"
			canonical.branches = map[string]bool{}

			_, err := orch.Deploy(ctx, "master", []targets.RepoTarget{devTarget})
			var validationErr *orchestrator.ValidationError
			Expect(errors.As(err, &validationErr)).To(BeTrue())
			Expect(validationErr.Violations).To(HaveLen(3))
			Expect(validationErr.Error()).To(Equal(
				validationErr.Violations[0] + ", " + validationErr.Violations[1] + ", " + validationErr.Violations[2],
			))
		})

		It("surfaces canonical lookup failures as errors", func() {
			canonical.err = errors.New("boom")

			run, err := orch.Resolve(ctx, ticket, []targets.RepoTarget{devTarget})
			Expect(err).NotTo(HaveOccurred())
			_, err = orch.Validate(ctx, run)
			Expect(err).To(MatchError(ContainSubstring("boom")))
			Expect(orchestrator.DescribeFailure(err)).To(Equal("validate canonical repository landing/aws-landingzones: remote call failed"))
		})

		It("names the repository whose default branch could not be read", func() {
			run, err := orch.Resolve(ctx, ticket, []targets.RepoTarget{devTarget})
			Expect(err).NotTo(HaveOccurred())
			fake.failOn("GetDefaultBranch", "", fmt.Errorf("body: %w", gl.ErrNotFound))

			err = orch.Check(ctx, run)
			Expect(err).To(MatchError(gl.ErrNotFound))
			Expect(orchestrator.DescribeFailure(err)).To(Equal("validate " + devGroup + "/baseline: not found"))
		})
	})

	Describe("Deploy", func() {
		It("puts a fresh ticket under test (scenario A)", func() {
			run, err := orch.Deploy(ctx, ticket, []targets.RepoTarget{devTarget})
			Expect(err).NotTo(HaveOccurred())
			Expect(run.Failed()).To(BeFalse())

			Expect(fake.CallsTo("CreateBranch")).To(ConsistOf(call{Method: "CreateBranch", ProjectID: dev.project.ID, Args: []string{ticket, "main"}}))

			commits := fake.CallsTo("CommitFile")
			Expect(commits).To(HaveLen(1))
			Expect(commits[0].Args).To(Equal([]string{ticket, ".lz_config.yml", ".lz_version: JIRA-123", "test JIRA-123", "create"}))

			Expect(fake.CallsTo("SetDefaultBranch")[0].Args).To(Equal([]string{ticket}))
			Expect(dev.defaultBranch).To(Equal(ticket))

			Expect(fake.CallsTo("CreateTrigger")[0].Args).To(Equal([]string{"temp token to test JIRA-123"}))

			pipelines := fake.CallsTo("TriggerPipeline")
			Expect(pipelines).To(HaveLen(1))
			Expect(pipelines[0].Args[1:]).To(Equal([]string{ticket, "POLICY_MATCH_TYPE=", "POLICY_LIST=[]"}))

			report := orchestrator.BuildReport(run)
			Expect(report).To(HaveLen(1))
			Expect(report[0].Environment).To(Equal("gcc2_dev"))
			Expect(report[0].PipelineURL).NotTo(BeNil())
			Expect(*report[0].PipelineURL).To(ContainSubstring("/-/pipelines/"))
			Expect(report[0].RepositoryURL).To(Equal("https://gitlab.example.com/" + devGroup + "/baseline"))
			Expect(report[0].Error).To(BeEmpty())
		})

		It("is safe to run again (scenario B)", func() {
			_, err := orch.Deploy(ctx, ticket, []targets.RepoTarget{devTarget})
			Expect(err).NotTo(HaveOccurred())
			fake.ResetCalls()

			run, err := orch.Deploy(ctx, ticket, []targets.RepoTarget{devTarget})
			Expect(err).NotTo(HaveOccurred())
			Expect(run.Failed()).To(BeFalse())

			Expect(fake.CallsTo("CreateBranch")).To(BeEmpty())
			Expect(fake.CallsTo("CommitFile")[0].Args[4]).To(Equal("update"))
			Expect(fake.CallsTo("SetDefaultBranch")[0].Args).To(Equal([]string{ticket}))
			Expect(fake.CallsTo("CreateTrigger")).To(BeEmpty())
			Expect(fake.CallsTo("TriggerPipeline")).To(HaveLen(1))
			Expect(dev.triggers).To(HaveLen(1))
			Expect(*orchestrator.BuildReport(run)[0].PipelineURL).To(HaveSuffix("/-/pipelines/2"))
		})

		It("promotes only after the branch and config file are in place", func() {
			_, err := orch.Deploy(ctx, ticket, []targets.RepoTarget{devTarget})
			Expect(err).NotTo(HaveOccurred())

			methods := fake.MethodsFor(dev.project.ID)
			Expect(indexOf(methods, "SetDefaultBranch")).To(BeNumerically(">", indexOf(methods, "CreateBranch")))
			Expect(indexOf(methods, "SetDefaultBranch")).To(BeNumerically(">", indexOf(methods, "CommitFile")))
			Expect(indexOf(methods, "TriggerPipeline")).To(BeNumerically(">", indexOf(methods, "CreateTrigger")))
		})

		It("keeps going when the config file cannot be written", func() {
			fake.failOn("CommitFile", "", gl.ErrRejected)

			run, err := orch.Deploy(ctx, ticket, []targets.RepoTarget{devTarget})
			Expect(err).NotTo(HaveOccurred())
			Expect(run.Failed()).To(BeFalse())
			Expect(run.Repos[0].Warnings).To(ConsistOf("write_feature_config: rejected by platform"))
			Expect(run.Repos[0].Pipeline).NotTo(BeNil())
			Expect(recorder.Observations()).To(ContainElement(stepObservation{Step: "write_feature_config", Outcome: "skipped"}))
		})

		It("isolates a failing repository from its siblings", func() {
			stg := fake.addProject(stgGroup+"/baseline", "main", "main")
			stgTarget := targets.RepoTarget{Environment: "gcc2_stg", GroupPath: stgGroup, Project: "baseline"}
			fake.failOn("TriggerPipeline", stgGroup+"/baseline", gl.ErrRejected)

			run, err := orch.Deploy(ctx, ticket, []targets.RepoTarget{devTarget, stgTarget})
			Expect(err).NotTo(HaveOccurred())
			Expect(run.Failed()).To(BeTrue())

			Expect(run.Repos[0].Failed()).To(BeFalse())
			Expect(run.Repos[1].Failed()).To(BeTrue())
			Expect(run.Repos[1].Pipeline).To(BeNil())
			Expect(run.Repos[1].Completed).To(Equal([]orchestrator.StepName{
				orchestrator.StepEnsureFeatureBranch,
				orchestrator.StepWriteFeatureConfig,
				orchestrator.StepPromoteToFeature,
				orchestrator.StepEnsureTrigger,
			}))
			Expect(stg.defaultBranch).To(Equal(ticket))

			report := orchestrator.BuildReport(run)
			Expect(report[0].PipelineURL).NotTo(BeNil())
			Expect(report[1].PipelineURL).To(BeNil())
			Expect(report[1].Error).To(Equal("fire_feature_pipeline: rejected by platform"))
		})

		It("stops a repository at the first hard failure", func() {
			fake.failOn("SetDefaultBranch", "", errors.New("connection reset"))

			run, err := orch.Deploy(ctx, ticket, []targets.RepoTarget{devTarget})
			Expect(err).NotTo(HaveOccurred())

			var stepErr *orchestrator.StepError
			Expect(errors.As(run.Repos[0].Err, &stepErr)).To(BeTrue())
			Expect(stepErr.Step).To(Equal(orchestrator.StepPromoteToFeature))
			Expect(fake.CallsTo("CreateTrigger")).To(BeEmpty())
			Expect(orchestrator.BuildReport(run)[0].Error).To(Equal("promote_to_feature: remote call failed"))
		})

		It("renders custom templates with sprig functions", func() {
			orch = newOrchestrator(orchestrator.Config{
				ConfigFilePath:        "config/lz.yml",
				ConfigFileTemplate:    `version: {{ .Ticket | lower }} # {{ .Environment }}`,
				CommitMessageTemplate: `qa {{ .Ticket }} on {{ .MainBranch | upper }}`,
			})

			_, err := orch.Deploy(ctx, ticket, []targets.RepoTarget{devTarget})
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.CallsTo("CommitFile")[0].Args[1:4]).To(Equal([]string{"config/lz.yml", "version: jira-123 # gcc2_dev", "qa JIRA-123 on MAIN"}))
		})

		It("records every step", func() {
			_, err := orch.Deploy(ctx, ticket, []targets.RepoTarget{devTarget})
			Expect(err).NotTo(HaveOccurred())
			Expect(recorder.Observations()).To(Equal([]stepObservation{
				{Step: "ensure_feature_branch", Outcome: "success"},
				{Step: "write_feature_config", Outcome: "success"},
				{Step: "promote_to_feature", Outcome: "success"},
				{Step: "ensure_trigger", Outcome: "success"},
				{Step: "fire_feature_pipeline", Outcome: "success"},
			}))
		})
	})

	Describe("Reset", func() {
		BeforeEach(func() {
			_, err := orch.Deploy(ctx, ticket, []targets.RepoTarget{devTarget})
			Expect(err).NotTo(HaveOccurred())
			fake.ResetCalls()
		})

		It("restores the main branch and tears down the ticket", func() {
			run, err := orch.Reset(ctx, ticket, []targets.RepoTarget{devTarget})
			Expect(err).NotTo(HaveOccurred())
			Expect(run.Failed()).To(BeFalse())

			Expect(dev.defaultBranch).To(Equal("main"))
			Expect(dev.branches).NotTo(HaveKey(ticket))
			Expect(dev.triggers).To(BeEmpty())
			Expect(fake.CallsTo("CreateTrigger")).To(BeEmpty())

			pipelines := fake.CallsTo("TriggerPipeline")
			Expect(pipelines).To(HaveLen(1))
			Expect(pipelines[0].Args[1]).To(Equal("main"))

			Expect(run.Repos[0].Trigger).To(BeNil())
			Expect(orchestrator.BuildReport(run)[0].PipelineURL).NotTo(BeNil())
		})

		It("restores the default before deleting the branch and fires before deleting the trigger", func() {
			_, err := orch.Reset(ctx, ticket, []targets.RepoTarget{devTarget})
			Expect(err).NotTo(HaveOccurred())

			methods := fake.MethodsFor(dev.project.ID)
			Expect(indexOf(methods, "DeleteBranch")).To(BeNumerically(">", indexOf(methods, "SetDefaultBranch")))
			Expect(indexOf(methods, "DeleteTrigger")).To(BeNumerically(">", indexOf(methods, "TriggerPipeline")))
		})

		It("creates a temporary trigger when none exists (scenario D)", func() {
			dev.triggers = nil

			run, err := orch.Reset(ctx, ticket, []targets.RepoTarget{devTarget})
			Expect(err).NotTo(HaveOccurred())
			Expect(run.Failed()).To(BeFalse())

			Expect(fake.CallsTo("CreateTrigger")).To(HaveLen(1))
			Expect(fake.CallsTo("DeleteTrigger")).To(HaveLen(1))
			Expect(dev.triggers).To(BeEmpty())
			Expect(orchestrator.BuildReport(run)[0].PipelineURL).NotTo(BeNil())
		})

		It("treats an already deleted branch as done", func() {
			delete(dev.branches, ticket)

			run, err := orch.Reset(ctx, ticket, []targets.RepoTarget{devTarget})
			Expect(err).NotTo(HaveOccurred())
			Expect(run.Failed()).To(BeFalse())
			Expect(run.Repos[0].Completed).To(ContainElement(orchestrator.StepDeleteFeatureBranch))
		})

		It("never deletes the branch when restoring the default failed", func() {
			fake.failOn("SetDefaultBranch", "", gl.ErrRejected)

			run, err := orch.Reset(ctx, ticket, []targets.RepoTarget{devTarget})
			Expect(err).NotTo(HaveOccurred())
			Expect(run.Failed()).To(BeTrue())
			Expect(fake.CallsTo("DeleteBranch")).To(BeEmpty())
			Expect(dev.branches).To(HaveKey(ticket))
		})
	})

	Describe("lifecycle actions", func() {
		var state orchestrator.RepoState

		BeforeEach(func() {
			run, err := orch.Resolve(ctx, ticket, []targets.RepoTarget{devTarget})
			Expect(err).NotTo(HaveOccurred())
			state = run.Repos[0]
		})

		It("EnsureFeatureBranch is idempotent", func() {
			first, err := orch.EnsureFeatureBranch(ctx, ticket, state)
			Expect(err).NotTo(HaveOccurred())
			second, err := orch.EnsureFeatureBranch(ctx, ticket, first)
			Expect(err).NotTo(HaveOccurred())

			Expect(second).To(Equal(first))
			Expect(fake.CallsTo("CreateBranch")).To(HaveLen(1))
		})

		It("EnsureTrigger reuses a trigger created since resolution", func() {
			dev.triggers = []gl.Trigger{{ID: 7, Description: "temp token to test JIRA-123", Token: "t7"}}

			next, err := orch.EnsureTrigger(ctx, ticket, state)
			Expect(err).NotTo(HaveOccurred())
			Expect(next.Trigger.ID).To(Equal(7))
			Expect(fake.CallsTo("CreateTrigger")).To(BeEmpty())

			again, err := orch.EnsureTrigger(ctx, ticket, next)
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Trigger.ID).To(Equal(7))
			Expect(fake.CallsTo("CreateTrigger")).To(BeEmpty())
		})

		It("FirePipeline refuses without a trigger and keeps the pipeline empty", func() {
			next, err := orch.FirePipeline(orchestrator.FeatureRef)(ctx, ticket, state)
			Expect(err).To(MatchError(orchestrator.ErrNoTrigger))
			Expect(next.Pipeline).To(BeNil())
			Expect(fake.CallsTo("TriggerPipeline")).To(BeEmpty())
		})

		It("FirePipeline propagates a rejection without a pipeline handle", func() {
			withTrigger, err := orch.EnsureTrigger(ctx, ticket, state)
			Expect(err).NotTo(HaveOccurred())

			next, err := orch.FirePipeline(orchestrator.FeatureRef)(ctx, ticket, withTrigger)
			Expect(err).To(MatchError(gl.ErrRejected))
			Expect(next.Pipeline).To(BeNil())
		})

		It("DeleteFeatureBranch refuses while the ticket is still the default", func() {
			dev.branches[ticket] = true
			dev.defaultBranch = ticket

			_, err := orch.DeleteFeatureBranch(ctx, ticket, state)
			Expect(err).To(MatchError(orchestrator.ErrStillDefault))
			Expect(fake.CallsTo("DeleteBranch")).To(BeEmpty())
		})

		It("DeleteTrigger without a trigger succeeds without a remote call", func() {
			next, err := orch.DeleteTrigger(ctx, ticket, state)
			Expect(err).NotTo(HaveOccurred())
			Expect(next.Trigger).To(BeNil())
			Expect(fake.CallsTo("DeleteTrigger")).To(BeEmpty())
		})

		It("DeleteTrigger clears a trigger that is already gone", func() {
			state.Trigger = &gl.Trigger{ID: 99, Description: "temp token to test JIRA-123", Token: "gone"}

			next, err := orch.DeleteTrigger(ctx, ticket, state)
			Expect(err).NotTo(HaveOccurred())
			Expect(next.Trigger).To(BeNil())
		})
	})

	Describe("GitLabBranchSource", func() {
		It("looks the branch up in the canonical project", func() {
			lz := fake.addProject("landing/aws-landingzones", "main", "main")
			lz.branches[ticket] = true
			source := orchestrator.GitLabBranchSource{Client: fake, Path: "landing/aws-landingzones"}

			Expect(source.BranchExists(ctx, ticket)).To(BeTrue())
			Expect(source.BranchExists(ctx, "JIRA-999")).To(BeFalse())
			Expect(source.String()).To(Equal("landing/aws-landingzones"))
		})

		It("fails when the canonical project is missing", func() {
			source := orchestrator.GitLabBranchSource{Client: fake, Path: "landing/typo"}
			_, err := source.BranchExists(ctx, ticket)
			Expect(err).To(MatchError(gl.ErrNotFound))
		})
	})

	Describe("CheckTemplates", func() {
		It("accepts the defaults and rejects broken templates", func() {
			Expect(orchestrator.CheckTemplates(orchestrator.Config{})).To(Succeed())
			Expect(orchestrator.CheckTemplates(orchestrator.Config{ConfigFileTemplate: "{{ .Ticket "})).NotTo(Succeed())
		})
	})
})

func indexOf(methods []string, method string) int {
	for i, m := range methods {
		if m == method {
			return i
		}
	}
	return -1
}
