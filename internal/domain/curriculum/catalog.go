// Package curriculum holds the static week catalog and the reward table derived from it.
package curriculum

import (
	"errors"
	"fmt"
	"sort"
)

// Weeks is the length of the programme.
const Weeks = 52

// Entry is one curriculum week.
type Entry struct {
	Week        int    `json:"week" koanf:"week"`
	Title       string `json:"title" koanf:"title"`
	Phase       string `json:"phase" koanf:"phase"`
	Deliverable string `json:"deliverable" koanf:"deliverable"`
	Description string `json:"description" koanf:"description"`
}

// Sentinel kinds for catalog errors.
var (
	ErrInvalidCatalog = errors.New("invalid curriculum catalog")
)

// Catalog is an immutable, week-ordered list of entries.
type Catalog struct {
	entries []Entry
	byWeek  map[int]Entry
}

// NewCatalog validates entries and returns a catalog ordered by week.
// Weeks must be unique, within 1..52, and carry a deliverable path.
func NewCatalog(entries []Entry) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no entries", ErrInvalidCatalog)
	}
	c := &Catalog{
		entries: make([]Entry, 0, len(entries)),
		byWeek:  make(map[int]Entry, len(entries)),
	}
	for _, e := range entries {
		if e.Week < 1 || e.Week > Weeks {
			return nil, fmt.Errorf("%w: week %d out of range", ErrInvalidCatalog, e.Week)
		}
		if e.Deliverable == "" {
			return nil, fmt.Errorf("%w: week %d has no deliverable", ErrInvalidCatalog, e.Week)
		}
		if _, dup := c.byWeek[e.Week]; dup {
			return nil, fmt.Errorf("%w: duplicate week %d", ErrInvalidCatalog, e.Week)
		}
		c.byWeek[e.Week] = e
		c.entries = append(c.entries, e)
	}
	sort.Slice(c.entries, func(i, j int) bool { return c.entries[i].Week < c.entries[j].Week })
	return c, nil
}

// Default returns the built-in 52-week catalog.
func Default() *Catalog {
	c, err := NewCatalog(defaultEntries)
	if err != nil {
		panic(err)
	}
	return c
}

// Entries returns a copy of the entries in week order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Lookup returns the entry for week.
func (c *Catalog) Lookup(week int) (Entry, bool) {
	e, ok := c.byWeek[week]
	return e, ok
}

// Len returns the number of weeks in the catalog.
func (c *Catalog) Len() int { return len(c.entries) }

const (
	phaseFoundations = "Dev Foundations"
	phaseWeb3        = "Web3 & Blockchain"
	phaseFullStack   = "Full-Stack Dev"
	phaseBusiness    = "Business & Startup"
)

var defaultEntries = []Entry{
	{1, "GitHub Account & Profile Setup", phaseFoundations, "week-01/profile.md", "Create your GitHub profile with bio, photo, and pinned repos."},
	{2, "WSL & Terminal Basics", phaseFoundations, "week-02/commands.md", "Learn essential terminal commands and document your terminal session."},
	{3, "Git Fundamentals", phaseFoundations, "week-03/first-repo.md", "Create a repo with at least 3 meaningful commits."},
	{4, "Secrets, .gitignore & Privacy", phaseFoundations, "week-04/security-checklist.md", "Learn .gitignore patterns, .env.example workflow, and what happens when secrets leak."},
	{5, "Branching, Merging & PRs", phaseFoundations, "week-05/pr-review.md", "Create branches, open PRs, and review code."},
	{6, "Pre-commits & Secrets Scanning", phaseFoundations, "week-06/.pre-commit-config.yaml", "Set up pre-commit hooks with detect-secrets and lint hooks."},
	{7, "CI/CD & GitHub Actions", phaseFoundations, "week-07/.github/workflows/ci.yml", "Create a GitHub Actions workflow for automated testing."},
	{8, "HTML/CSS/JS Basics", phaseFoundations, "week-08/index.html", "Build a valid HTML page with CSS styling and JavaScript."},

	{9, "What is Blockchain?", phaseWeb3, "week-09/blockchain-essay.md", "Write a 300+ word essay explaining blockchain technology."},
	{10, "Wallet Security & Key Management", phaseWeb3, "week-10/key-safety.md", "Document private key storage, hardware wallets, and dev key management."},
	{11, "Wallets & Transactions", phaseWeb3, "week-11/wallet-setup.md", "Set up a wallet and submit a transaction."},
	{12, "Foundry Setup & Solidity Basics", phaseWeb3, "week-12/src/Storage.sol", "Install Foundry, create a project, write a Storage contract with events and modifiers."},
	{13, "ERC-20 Token with Foundry", phaseWeb3, "week-13/src/MyToken.sol", "Write an ERC-20 token contract with Foundry tests."},
	{14, "Deploying Contracts", phaseWeb3, "week-14/deployment.md", "Deploy to testnet and mainnet, verify on the block explorer."},
	{15, "Reading Contracts", phaseWeb3, "week-15/read-contract.ts", "Read data from your deployed contract."},
	{16, "Writing Transactions", phaseWeb3, "week-16/send-tx.ts", "Send transactions to your deployed contract."},
	{17, "NFT Fundamentals (ERC-721)", phaseWeb3, "week-17/src/MyNFT.sol", "Write an ERC-721 NFT contract with Foundry tests."},
	{18, "On-chain SVG NFTs", phaseWeb3, "week-18/src/OnChainNFT.sol", "Create an on-chain SVG NFT, deployed and verified."},
	{19, "DeFi Concepts", phaseWeb3, "week-19/defi-summary.md", "Write a 400+ word summary of DeFi concepts."},
	{20, "Smart Contract Security & Auditing", phaseWeb3, "week-20/AuditReport.md", "Perform a security audit on a sample contract."},

	{21, "React Fundamentals", phaseFullStack, "week-21/src/App.tsx", "Build a React application with components and state."},
	{22, "Next.js Getting Started", phaseFullStack, "week-22/app/page.tsx", "Create a Next.js app with App Router."},
	{23, "Tailwind CSS & Responsive Design", phaseFullStack, "week-23/app/globals.css", "Style a responsive page with Tailwind CSS."},
	{24, "API Routes & Server Actions", phaseFullStack, "week-24/app/api/data/route.ts", "Create API routes and server actions."},
	{25, "Database Basics (Redis)", phaseFullStack, "week-25/app/api/redis-demo/route.ts", "Build an API that reads and writes to Redis."},
	{26, "Wallet Authentication", phaseFullStack, "week-26/components/providers.tsx", "Implement wallet authentication."},
	{27, "Frontend and Smart Contracts", phaseFullStack, "week-27/app/page.tsx", "Connect a frontend to your smart contracts."},
	{28, "Full-Stack dApp: Token Dashboard", phaseFullStack, "week-28/README.md", "Build a complete token dashboard dApp with screenshots."},
	{29, "Testing Basics", phaseFullStack, "week-29/tests/index.test.ts", "Write and run passing tests for your code."},
	{30, "Deployment", phaseFullStack, "week-30/deployment.md", "Deploy your app and share the live URL."},
	{31, "TypeScript Deep Dive", phaseFullStack, "week-31/src/types.ts", "Create advanced TypeScript types and interfaces."},
	{32, "Form Handling & Validation", phaseFullStack, "week-32/app/form/page.tsx", "Build forms with client and server validation."},
	{33, "File Uploads & IPFS", phaseFullStack, "week-33/app/api/upload/route.ts", "Handle file uploads and pin to IPFS."},
	{34, "Webhooks & Event Processing", phaseFullStack, "week-34/app/api/webhook/route.ts", "Build a webhook handler that processes events."},
	{35, "Performance & Optimization", phaseFullStack, "week-35/app/loading.tsx", "Add loading states, error boundaries, and optimize performance."},
	{36, "Capstone: Mini dApp", phaseFullStack, "week-36/README.md", "Build and deploy a complete mini dApp with live URL."},

	{37, "Problem Discovery & Validation", phaseBusiness, "week-37/problem-validation.md", "Identify and validate a real problem worth solving."},
	{38, "Business Model Canvas", phaseBusiness, "week-38/business-model-canvas.md", "Create a complete business model canvas."},
	{39, "Competitive Analysis", phaseBusiness, "week-39/competitive-analysis.md", "Analyze competitors and identify your advantage."},
	{40, "User Personas & Journey Maps", phaseBusiness, "week-40/user-personas.md", "Create detailed user personas and journey maps."},
	{41, "MVP Definition & Roadmap", phaseBusiness, "week-41/mvp-roadmap.md", "Define your MVP scope and development roadmap."},
	{42, "Tokenomics Design", phaseBusiness, "week-42/tokenomics.md", "Design your token economics and distribution model."},
	{43, "Marketing Strategy for Web3", phaseBusiness, "week-43/marketing-plan.md", "Create a Web3 marketing strategy and go-to-market plan."},
	{44, "Community Building", phaseBusiness, "week-44/community-report.md", "Build and document your community growth strategy."},
	{45, "Financial Projections", phaseBusiness, "week-45/financial-model.md", "Create 3-year financial projections."},
	{46, "Pitch Deck Draft", phaseBusiness, "week-46/pitch-deck.md", "Draft your investor pitch deck."},
	{47, "Legal & Compliance Basics", phaseBusiness, "week-47/legal-overview.md", "Research legal and compliance requirements."},
	{48, "Fundraising Strategy", phaseBusiness, "week-48/fundraising-plan.md", "Create your fundraising strategy and investor pipeline."},
	{49, "Demo Day Rehearsal", phaseBusiness, "week-49/demo-video-link.md", "Record a practice demo and get feedback."},
	{50, "Accelerator Application Prep", phaseBusiness, "week-50/nitro-application-draft.md", "Draft your accelerator application with all required materials."},
	{51, "Market Deep Dive", phaseBusiness, "week-51/latam-market-analysis.md", "Research and analyze your target market."},
	{52, "Final Presentation & Graduation", phaseBusiness, "week-52/graduation.md", "Deliver your final presentation and graduate."},
}
