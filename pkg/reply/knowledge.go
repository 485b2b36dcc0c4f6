package reply

import "github.com/go-go-golems/estatebot/pkg/chat"

const (
	capabilityStatement = "I can help you find land, houses and apartments, explain how to verify a title deed, or connect you with one of our agents. What are you looking for today?"

	adminFraming = "Welcome back to the admin console. Ask me for catalog stats or type \"help\" to see what I can do."

	adminHelpText = `Here is what I can do for admins:
- "stats" or "how many properties": catalog size and average price
- "average price": the mean asking price across listings
- any property question: the same matching customers get
Listings, submissions and inquiries are managed from the dashboard.`

	contactReply = "I'd be happy to connect you with one of our agents. How would you prefer to be contacted: phone call, WhatsApp, or email?"

	legalGuidance = `Before buying, always verify the title deed. Here is a document checklist:
1. A copy of the title deed, and an official search from the Ministry of Lands (eCitizen / Ardhisasa).
2. The seller's national ID or company registration documents and KRA PIN.
3. Land rates and rent clearance certificates from the county.
4. Land Control Board consent for agricultural land.
5. A survey map or mutation form to confirm boundaries on the ground.
Engage an advocate to run the search and handle the transfer.`

	noListingsReply = "Sorry, there are no properties matching your request right now. Tell me your preferred location, property type, or budget and I will keep an eye out."

	foundReplyFormat = "I found %d properties that might interest you."

	clarifyReply = "Could you tell me a bit more about what you are looking for? For example the location, the property type (land, house, apartment), or your budget."

	domainKnowledge = `Domain knowledge: In Kenya, buyers should always conduct an official land search at the Ministry of Lands (via eCitizen or Ardhisasa) before paying any deposit. A genuine title deed lists the registered owner, parcel number and any encumbrances such as charges or caveats. Agricultural land transfers need Land Control Board consent. Buyers should confirm boundaries with a licensed surveyor, check that land rates are paid, and use an advocate for the sale agreement and transfer. Never pay cash to unverified intermediaries.`
)

// fewShot are the fixed exemplar turns placed before the real conversation.
var fewShot = []chat.Turn{
	{Role: chat.RoleUser, Content: "How can I be sure a title deed is genuine?"},
	{Role: chat.RoleAssistant, Content: "Good question! Always request a copy of the title and run an official search at the Ministry of Lands through eCitizen or Ardhisasa. The search confirms the registered owner and any charges on the land. I can also connect you with our agent to guide you through it."},
}
