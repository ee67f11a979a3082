package domain

// WeatherReport holds current conditions for one location.
type WeatherReport struct {
	City        string
	Country     string
	Description string
	TempC       float64
	FeelsLikeC  float64
	Humidity    int
	WindSpeed   float64
}

// Definition holds a dictionary lookup result.
type Definition struct {
	Term         string
	PartOfSpeech string
	Meanings     []string
	Source       string
}

// Translation holds a translation lookup result.
type Translation struct {
	SourceLang string
	TargetLang string
	Original   string
	Translated string
}
