package extract

// English and Italian word lists used by the metadata heuristics

var stopWords = toSet(
	"i", "the", "a", "an", "and", "but", "or", "he", "she", "it", "they", "we", "you",
	"his", "her", "their", "our", "my", "your", "this", "that", "these", "those",
	"then", "when", "while", "after", "before", "there", "here", "in", "on", "at",
	"as", "if", "so", "yes", "no", "not", "what", "who", "where", "why", "how",
	"mr", "mrs", "ms", "dr", "sir", "lady", "lord", "god", "oh",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	"january", "february", "march", "april", "may", "june", "july", "august",
	"september", "october", "november", "december",
	"il", "lo", "la", "le", "gli", "un", "una", "uno", "e", "ma", "o", "lui", "lei",
	"loro", "noi", "voi", "io", "tu", "questo", "quella", "quello", "questa", "poi",
	"quando", "mentre", "dopo", "prima", "nel", "nella", "con", "per", "non", "si",
	"chi", "cosa", "dove", "perché", "come", "signor", "signora", "dio",
)

var speechVerbs = toSet(
	"said", "says", "asked", "replied", "answered", "whispered", "shouted", "cried",
	"muttered", "called", "exclaimed",
	"disse", "dice", "chiese", "rispose", "sussurrò", "gridò", "urlò", "esclamò", "mormorò",
)

var placeWords = map[string]string{
	"forest": "forest", "woods": "forest", "foresta": "forest", "bosco": "forest",
	"castle": "castle", "castello": "castle",
	"city": "city", "town": "city", "città": "city",
	"village": "village", "villaggio": "village", "paese": "village",
	"house": "house", "home": "house", "casa": "house",
	"sea": "sea", "ocean": "sea", "mare": "sea",
	"beach": "beach", "spiaggia": "beach",
	"mountain": "mountains", "mountains": "mountains", "montagna": "mountains", "montagne": "mountains",
	"river": "river", "fiume": "river",
	"street": "street", "strada": "street", "via": "street",
	"church": "church", "chiesa": "church",
	"school": "school", "scuola": "school",
	"garden": "garden", "giardino": "garden",
	"ship": "ship", "nave": "ship",
}

var timeWords = map[string]string{
	"dawn": "dawn", "sunrise": "dawn", "alba": "dawn",
	"morning": "morning", "mattina": "morning", "mattino": "morning",
	"noon": "noon", "midday": "noon", "mezzogiorno": "noon",
	"afternoon": "afternoon", "pomeriggio": "afternoon",
	"evening": "evening", "sera": "evening",
	"sunset": "sunset", "dusk": "sunset", "tramonto": "sunset",
	"night": "night", "tonight": "night", "notte": "night",
	"midnight": "midnight", "mezzanotte": "midnight",
	"winter": "winter", "inverno": "winter",
	"summer": "summer", "estate": "summer",
	"spring": "spring", "primavera": "spring",
	"autumn": "autumn", "fall": "autumn", "autunno": "autumn",
}

type emotionStem struct {
	stem    string
	emotion string
}

var emotionLexicon = []emotionStem{
	{"happy", "joy"}, {"happi", "joy"}, {"joy", "joy"}, {"laugh", "joy"}, {"smil", "joy"}, {"felic", "joy"}, {"gioia", "joy"}, {"sorris", "joy"},
	{"sad", "sadness"}, {"tear", "sadness"}, {"wept", "sadness"}, {"weep", "sadness"}, {"sorrow", "sadness"}, {"trist", "sadness"}, {"lacrim", "sadness"}, {"pianse", "sadness"}, {"piang", "sadness"},
	{"fear", "fear"}, {"afraid", "fear"}, {"terror", "fear"}, {"scare", "fear"}, {"paura", "fear"}, {"terrore", "fear"}, {"spavent", "fear"},
	{"angr", "anger"}, {"rage", "anger"}, {"furi", "anger"}, {"rabbia", "anger"}, {"ira", "anger"},
	{"love", "love"}, {"kiss", "love"}, {"amor", "love"}, {"bacio", "love"}, {"amava", "love"},
	{"surpris", "surprise"}, {"astonish", "surprise"}, {"sorpres", "surprise"}, {"stupor", "surprise"},
	{"calm", "calm"}, {"peace", "calm"}, {"quiet", "calm"}, {"sereni", "calm"},
	{"kill", "violence"}, {"murder", "violence"}, {"blood", "violence"}, {"violen", "violence"}, {"uccis", "violence"}, {"uccid", "violence"}, {"sangue", "violence"},
	{"hate", "hate"}, {"hatred", "hate"}, {"odio", "hate"}, {"odiava", "hate"},
}

var actionStems = []string{
	"run", "runn", "ran", "fight", "fought", "jump", "chase", "attack", "escap", "crash", "explod",
	"strik", "struck", "grab", "rush", "fled", "flee", "charg", "shot", "shoot", "race", "raced",
	"corse", "correv", "combatt", "saltò", "saltar", "fugg", "insegu", "attacc", "esplo", "colpì", "sparò", "precipit",
}

func toSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
