package agent

import (
	"fmt"
	"strings"
)

// registrationTool is the registration check the scoring service exposes
// over its remote tool endpoint. The prompt demands it only when
// discovery actually found it.
const registrationTool = "mcp_blueshift_check_agent_registration"

// programID is the fixed address every generated program must declare;
// the grader loads submitted binaries there.
const programID = "22222222222222222222222222222222222222222222"

// anchorLangVersion is the dependency pin the grader's toolchain expects.
const anchorLangVersion = "0.32.1"

// systemPrompt renders the instruction preamble for a run. A non-empty
// run.system_prompt in config replaces it wholesale.
func (a *Agent) systemPrompt() string {
	if a.cfg.Run.SystemPrompt != "" {
		return a.cfg.Run.SystemPrompt
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a Solana coding agent. Your mission is to solve Blueshift coding challenges.\n\n", a.cfg.Name)
	fmt.Fprintf(&b, "Your wallet address: %s\n\n", a.deps.Address)

	if a.deps.Registry.Has(registrationTool) {
		fmt.Fprintf(&b, "Registration comes first:\n")
		fmt.Fprintf(&b, "1. Call %s with the wallet address above.\n", registrationTool)
		b.WriteString("2. If it reports you are unregistered, complete the registration flow before any challenge work.\n\n")
	}

	b.WriteString(`Working process:
1. Call blueshift_list_challenges and blueshift_get_progress to map the work.
2. Skip every challenge the progress data already marks completed.
3. Work one challenge at a time: fetch it with blueshift_get_challenge, solve it, submit, check the result, then move on.
`)
	if a.deps.Registry.Has("kb_search") {
		b.WriteString("4. Consult kb_search for Anchor patterns and prior solutions before writing code.\n")
	}

	b.WriteString(`
While work remains, every response must include a tool call. State your intent in one sentence at most, then call the tool in the same response. Never announce what you will do without doing it. Respond without a tool call only when the mission is complete; that text is your final report.

Building Anchor programs:
`)
	fmt.Fprintf(&b, "- Always use declare_id!(%q); as the program ID.\n", programID)
	fmt.Fprintf(&b, "- Pin anchor-lang = %q in Cargo.toml. Do NOT add solana-program as a separate dependency; anchor-lang includes it.\n", anchorLangVersion)
	b.WriteString(`- anchor_create_program scaffolds a workspace, writes your Cargo.toml and lib.rs, builds, and returns the workspace directory and the compiled .so path in one call.
- When a build fails: inspect sources with read_file, correct them with write_file, then anchor_build with the workspace directory. Paths resolve relative to the build workspace; absolute paths inside it also work.
- Submit program challenges with blueshift_attempt_program and the .so path from the build result. Submit client challenges with blueshift_attempt_client and a fully signed base64 transaction.
`)

	return b.String()
}

// DefaultTask is the opening user turn when the caller supplies no
// instructions of its own.
func DefaultTask(slug string) string {
	if slug != "" {
		return fmt.Sprintf("Solve the challenge %q. Check blueshift_get_progress first and stop if it is already completed; otherwise fetch it with blueshift_get_challenge, solve it, and submit. Report the submission result when done.", slug)
	}
	return "Work through the challenge catalog: list the challenges, check progress, and solve every challenge not yet completed. Report a summary of submissions and outcomes when everything is done."
}
