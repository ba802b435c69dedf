package mcpserver

const rulesURI = "staykeep://rules"

// DashboardRules describes the derived values the inventory and claim tools
// report, so an LLM client can explain them without guessing.
const DashboardRules = `# StayKeep Dashboard Rules

## Scope

Every list is filtered by the session's property mode:

| Mode         | Shows                                  |
|--------------|----------------------------------------|
| all          | every row visible to the user          |
| property     | rows of the selected property only     |
| unassigned   | rows with no property                  |

Selecting a property switches the mode to ` + "`property`" + `. When the user
can see exactly one property it is selected automatically.

## Stock status

| Condition                          | Status |
|------------------------------------|--------|
| quantity <= 0                      | Out    |
| 0 < quantity <= restock threshold  | Low    |
| quantity > restock threshold       | OK     |

An item whose quantity drops to the threshold or below is flagged for
restock. The flag is only cleared by the restock workflow.

Unit price is package cost divided by units per package when both are set,
otherwise the flat unit price.

## Claim deadlines

The deadline is the stored claim deadline when present, otherwise the
checkout date plus the platform window:

| Platform | Window  |
|----------|---------|
| airbnb   | 14 days |
| vrbo     | 60 days |
| other    | 30 days |

Days remaining count calendar days from today. Negative is **overdue**,
0 to 3 is **urgent**, anything else is **normal**. A claim whose status is
anything other than ` + "`not_filed`" + ` has no deadline.
`
