package knowledge

import "context"

// SeedSnippets is the built-in pattern library indexed on first startup.
// Entries are keyed by stable ids so reseeding an existing store is a no-op.
var SeedSnippets = []Snippet{
	{
		ID:       "excel-load-inspect",
		Title:    "Loading and inspecting an Excel workbook",
		Category: "excel",
		Content: "Load every sheet and inspect structure before analyzing:\n" +
			"```python\n" +
			"import pandas as pd\n" +
			"sheets = pd.read_excel(path, sheet_name=None, engine='openpyxl')\n" +
			"for name, df in sheets.items():\n" +
			"    print(name, df.shape)\n" +
			"    print(df.dtypes)\n" +
			"    print(df.head())\n" +
			"```\n" +
			"Watch for header rows that are not row 0; use header= or skiprows= when " +
			"the first rows contain titles or merged cells.",
	},
	{
		ID:       "missing-values",
		Title:    "Handling missing values",
		Category: "cleaning",
		Content: "Quantify missingness before deciding how to treat it:\n" +
			"```python\n" +
			"df.isna().mean().sort_values(ascending=False)\n" +
			"```\n" +
			"Drop columns that are mostly empty, impute numeric columns with the median " +
			"and categorical columns with the mode, and always report how many values " +
			"were affected.",
	},
	{
		ID:       "type-coercion",
		Title:    "Coercing mixed-type columns",
		Category: "cleaning",
		Content: "Spreadsheet columns often mix numbers, currency strings, and blanks:\n" +
			"```python\n" +
			"df['amount'] = pd.to_numeric(\n" +
			"    df['amount'].astype(str).str.replace(r'[$,]', '', regex=True),\n" +
			"    errors='coerce')\n" +
			"df['date'] = pd.to_datetime(df['date'], errors='coerce')\n" +
			"```\n" +
			"Count the NaT/NaN values produced by coercion to catch silently dropped data.",
	},
	{
		ID:       "groupby-summary",
		Title:    "Grouped aggregation summaries",
		Category: "analysis",
		Content: "Use named aggregations for readable summary tables:\n" +
			"```python\n" +
			"summary = df.groupby('region').agg(\n" +
			"    total_sales=('sales', 'sum'),\n" +
			"    avg_order=('sales', 'mean'),\n" +
			"    orders=('sales', 'count'),\n" +
			").reset_index().sort_values('total_sales', ascending=False)\n" +
			"```\n" +
			"Keep the result as a DataFrame variable so it is captured as a table.",
	},
	{
		ID:       "plot-save",
		Title:    "Saving plots from the sandbox",
		Category: "visualization",
		Content: "Always save figures into plots_dir and close them:\n" +
			"```python\n" +
			"import matplotlib.pyplot as plt\n" +
			"import os\n" +
			"fig, ax = plt.subplots(figsize=(10, 6))\n" +
			"df.plot.bar(x='region', y='total_sales', ax=ax)\n" +
			"ax.set_title('Sales by region')\n" +
			"fig.tight_layout()\n" +
			"fig.savefig(os.path.join(plots_dir, 'sales_by_region.png'), dpi=150)\n" +
			"plt.close(fig)\n" +
			"```",
	},
	{
		ID:       "correlation-heatmap",
		Title:    "Correlation analysis with a heatmap",
		Category: "visualization",
		Content: "```python\n" +
			"import seaborn as sns\n" +
			"import matplotlib.pyplot as plt\n" +
			"import os\n" +
			"corr = df.select_dtypes('number').corr()\n" +
			"fig, ax = plt.subplots(figsize=(10, 8))\n" +
			"sns.heatmap(corr, annot=True, fmt='.2f', cmap='coolwarm', ax=ax)\n" +
			"fig.savefig(os.path.join(plots_dir, 'correlation.png'), dpi=150)\n" +
			"plt.close(fig)\n" +
			"```\n" +
			"Report only correlations above a meaningful threshold, not the full matrix.",
	},
	{
		ID:       "outlier-detection",
		Title:    "Detecting outliers with the IQR rule",
		Category: "analysis",
		Content: "```python\n" +
			"q1, q3 = df['value'].quantile([0.25, 0.75])\n" +
			"iqr = q3 - q1\n" +
			"outliers = df[(df['value'] < q1 - 1.5 * iqr) | (df['value'] > q3 + 1.5 * iqr)]\n" +
			"```\n" +
			"Describe outliers before removing them; they are often the interesting part " +
			"of the data.",
	},
	{
		ID:       "time-series-resample",
		Title:    "Resampling time series data",
		Category: "analysis",
		Content: "```python\n" +
			"df = df.set_index('date').sort_index()\n" +
			"monthly = df['sales'].resample('MS').sum()\n" +
			"rolling = monthly.rolling(3).mean()\n" +
			"```\n" +
			"Resample to a regular frequency before computing trends; irregular gaps " +
			"distort rolling statistics.",
	},
	{
		ID:       "pivot-tables",
		Title:    "Pivot tables for cross-tabulation",
		Category: "analysis",
		Content: "```python\n" +
			"pivot = pd.pivot_table(df, values='sales', index='region',\n" +
			"                       columns='quarter', aggfunc='sum', fill_value=0)\n" +
			"```\n" +
			"Pivots with margins=True add row and column totals for quick sanity checks.",
	},
	{
		ID:       "hypothesis-testing",
		Title:    "Comparing groups with statistical tests",
		Category: "statistics",
		Content: "```python\n" +
			"from scipy import stats\n" +
			"a = df[df.group == 'A']['value'].dropna()\n" +
			"b = df[df.group == 'B']['value'].dropna()\n" +
			"t, p = stats.ttest_ind(a, b, equal_var=False)\n" +
			"```\n" +
			"Check group sizes and normality first; fall back to mannwhitneyu for " +
			"skewed distributions. Always report effect size alongside the p-value.",
	},
}

// Seed indexes the built-in snippet library.
func Seed(ctx context.Context, store *Store) error {
	return store.AddBatch(ctx, SeedSnippets)
}
