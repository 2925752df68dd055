package langdetect

// Frequent words that tip short Cyrillic text toward one language when no
// exclusive letter is present.
var ukWords = []string{
	"і", "треба", "що", "шо", "буде", "україни", "чи", "ви", "ти", "мене",
	"ще", "як", "може", "де", "зараз", "україні", "року", "життя", "яка", "вона",
	"україна", "нічого", "добре", "така", "поки", "нема", "роботу", "писати", "любов", "шось",
	"знати", "він", "мені", "ні", "його", "тобі", "є", "якщо", "щоб", "був",
	"було", "вже", "дуже", "їх", "хто", "від", "її", "чому", "цього", "лише",
	"щось", "мій", "тепер", "бути", "знаєш", "тільки", "всі", "більше", "можу", "ніколи",
	"цей", "йому", "можна", "зі", "дякую", "навіть", "була", "тоді", "нього", "немає",
	"були", "чого", "ці", "таке", "багато", "теж", "має", "завжди", "краще", "привіт",
	"сьогодні", "який", "із", "які", "років", "під", "знову", "сказати", "справді", "зробити",
	"трохи", "робити", "мої", "твій", "потім", "такий", "ніхто", "ніж", "воно", "цьому",
	"саме", "міг", "це", "ця", "собі", "потрібно", "хтось", "хіба", "якби", "знаєте",
	"їм", "куди", "після", "неї", "їй", "здається", "дещо",
}

var ruWords = []string{
	"что", "с", "ты", "это", "вы", "как", "мы", "мне", "меня", "нет",
	"тебя", "его", "она", "если", "они", "бы", "здесь", "из", "есть", "чтобы",
	"хорошо", "когда", "только", "вот", "был", "всё", "было", "может", "кто", "очень",
	"их", "будет", "почему", "еще", "быть", "где", "спасибо", "ничего", "сейчас", "или",
	"могу", "чем", "мой", "надо", "этого", "теперь", "знаешь", "нужно", "больше", "этом",
	"нибудь", "со", "была", "этот", "ему", "эй", "время", "даже", "хочешь", "сказал",
	"ли", "себя", "должен", "никогда", "ни", "ещё", "её", "пожалуйста", "сюда", "привет",
	"тогда", "конечно", "него", "сегодня", "тобой", "лучше", "были", "можно", "мной", "всегда",
	"сказать", "сэр", "можешь", "чего", "эти", "дело", "значит", "лет", "много", "делать",
	"порядке", "должны", "такой", "ведь", "всего",
}
